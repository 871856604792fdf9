package speechadmin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/RollSatrs/speechcenter-admin/internal/analytics"
	"github.com/RollSatrs/speechcenter-admin/internal/auth"
	"github.com/RollSatrs/speechcenter-admin/internal/bot"
	"github.com/RollSatrs/speechcenter-admin/internal/config"
	"github.com/RollSatrs/speechcenter-admin/internal/history"
	"github.com/RollSatrs/speechcenter-admin/internal/logger"
	"github.com/RollSatrs/speechcenter-admin/internal/metrics"
	"github.com/RollSatrs/speechcenter-admin/internal/server"
	"github.com/RollSatrs/speechcenter-admin/internal/store"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.FileConfig

type BotStatusReport = bot.StatusReport

type ProcessStatus = bot.ProcessStatus

type AuditSink = history.Sink

type AuditEvent = history.Event

// App wires the store, auth, bot control and analytics services behind
// a single embeddable unit. Build one with NewApp, then mount Handler()
// or start a standalone server with NewHTTPServer.
type App struct {
	cfg     *config.FileConfig
	store   *store.Store
	auth    *auth.Service
	bot     *bot.Service
	logger  *slog.Logger
	audit   *history.Recorder
	router  *server.Router
	sweeper *auth.Sweeper
	closer  func() error
}

// LoadConfig reads a TOML config file.
func LoadConfig(path string) (*config.FileConfig, error) {
	return config.Load(path)
}

// NewApp connects to the database, runs schema migration and builds all
// services from the config.
func NewApp(ctx context.Context, cfg *config.FileConfig) (*App, error) {
	log := logger.New(cfg.Log)

	st, err := store.Open(store.Config{
		Type:         cfg.Database.Type,
		Path:         cfg.Database.Path,
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		Database:     cfg.Database.Database,
		Username:     cfg.Database.Username,
		Password:     cfg.Database.Password,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	authSvc := auth.NewService(st, auth.Config{
		CookieName:    cfg.Auth.CookieName,
		SessionDays:   cfg.Auth.SessionDays,
		BcryptCost:    cfg.Auth.BcryptCost,
		SecureCookies: cfg.Auth.SecureCookies,
	})

	sup := bot.NewSupervisor(bot.SupervisorConfig{
		ProcessName:   cfg.Bot.ProcessName,
		Bin:           cfg.Bot.PM2Bin,
		EcosystemPath: cfg.Bot.EcosystemPath,
		WorkDir:       cfg.Bot.WorkDir,
		ExecTimeout:   cfg.Bot.ExecTimeout,
	})
	botSvc := bot.NewService(st, sup, cfg.Bot.HeartbeatWindow, log)

	closer := st.Close
	var recorder *history.Recorder
	if cfg.History.Enabled {
		sink, err := history.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("open audit sink: %w", err)
		}
		recorder = history.NewRecorder(sink, log)
		if c, ok := sink.(interface{ Close() error }); ok {
			closer = func() error {
				_ = c.Close()
				return st.Close()
			}
		}
	}

	analyticsSvc := analytics.NewService(st)

	sweeper := auth.NewSweeper(st, time.Hour, log)
	if err := sweeper.Start(); err != nil {
		_ = closer()
		return nil, fmt.Errorf("start session sweeper: %w", err)
	}

	app := &App{
		cfg:     cfg,
		store:   st,
		auth:    authSvc,
		bot:     botSvc,
		logger:  log,
		audit:   recorder,
		sweeper: sweeper,
		closer:  closer,
	}
	app.router = server.NewRouter(st, authSvc, botSvc, analyticsSvc, recorder, log, cfg.Server.BasePath)
	return app, nil
}

// Handler returns the HTTP handler with all dashboard API routes.
func (a *App) Handler() http.Handler { return a.router.Handler() }

// Logger exposes the configured slog logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Store exposes the relational store, mainly for admin bootstrap tooling.
func (a *App) Store() *store.Store { return a.store }

// Auth exposes the auth service for account management.
func (a *App) Auth() *auth.Service { return a.auth }

// BotStatus resolves the current bot status for embedding callers.
func (a *App) BotStatus(ctx context.Context) bot.StatusReport { return a.bot.Status(ctx) }

// Close stops background work and releases the database and audit sink
// connections.
func (a *App) Close() error {
	a.sweeper.Stop()
	return a.closer()
}

// NewHTTPServer starts an HTTP server exposing the dashboard API.
func NewHTTPServer(addr string, a *App) (*http.Server, error) {
	return server.NewServer(addr, a.router)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.RegisterDefault() }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It blocks in the caller goroutine.
func ServeMetrics(addr string) error { return metrics.Serve(addr) }
