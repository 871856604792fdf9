package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	speechadmin "github.com/RollSatrs/speechcenter-admin"
)

func runServe(flags *ServeFlags) error {
	if flags.ConfigPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=config.toml or provide as argument")
	}
	cfg, err := speechadmin.LoadConfig(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	ctx := context.Background()
	app, err := speechadmin.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	if cfg.Metrics.Enabled {
		if err := speechadmin.RegisterMetricsDefault(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		go func() {
			if err := speechadmin.ServeMetrics(cfg.Metrics.Listen); err != nil {
				app.Logger().Error("metrics server stopped", "error", err)
			}
		}()
	}

	srv, err := speechadmin.NewHTTPServer(cfg.Server.Listen, app)
	if err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	app.Logger().Info("dashboard API listening", "addr", cfg.Server.Listen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	app.Logger().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runAdminCreate(flags *AdminCreateFlags) error {
	if flags.ConfigPath == "" {
		return fmt.Errorf("config file required. Use --config=config.toml")
	}
	password := flags.Password
	if password == "" {
		password = os.Getenv("SPEECHADMIN_PASSWORD")
	}
	if password == "" {
		return fmt.Errorf("password required via --password or SPEECHADMIN_PASSWORD")
	}

	cfg, err := speechadmin.LoadConfig(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	ctx := context.Background()
	app, err := speechadmin.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	hash, err := app.Auth().HashPassword(password)
	if err != nil {
		return err
	}
	// Logins compare lowercased emails; store accounts the same way.
	email := strings.ToLower(strings.TrimSpace(flags.Email))
	id, err := app.Store().CreateAdmin(ctx, email, hash)
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	fmt.Printf("Admin '%s' created with id %d\n", email, id)
	return nil
}

func runAdminList(flags *AdminListFlags) error {
	if flags.ConfigPath == "" {
		return fmt.Errorf("config file required. Use --config=config.toml")
	}
	cfg, err := speechadmin.LoadConfig(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	ctx := context.Background()
	app, err := speechadmin.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	admins, err := app.Store().ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("failed to list admins: %w", err)
	}
	if len(admins) == 0 {
		fmt.Println("No admins found")
		return nil
	}
	for _, admin := range admins {
		lastLogin := "never"
		if admin.LastLoginAt.Valid {
			lastLogin = admin.LastLoginAt.Time.Format(time.RFC3339)
		}
		fmt.Printf("%d\t%s\tcreated=%s\tlast_login=%s\n",
			admin.ID, admin.Email, admin.CreatedAt.Format(time.RFC3339), lastLogin)
	}
	return nil
}
