package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with all subcommands attached.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	serveFlags := &ServeFlags{}
	adminCreateFlags := &AdminCreateFlags{}
	adminListFlags := &AdminListFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags, serveFlags),
		createAdminCommand(globalFlags, adminCreateFlags, adminListFlags),
		createVersionCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "speechadmin",
		Short: "Admin dashboard backend for the speech-therapy intake bot",
		Long: `Speechadmin serves the admin dashboard API: admin authentication,
test catalog management, intake analytics and control of the
messaging-bot worker process via pm2.

Examples:
  speechadmin serve --config=config.toml
  speechadmin admin create --email=ops@example.com --config=config.toml
  speechadmin admin list --config=config.toml`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")
	return root
}

func createServeCommand(globalFlags *GlobalFlags, serveFlags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the dashboard API server",
		Long: `Start the HTTP server for the admin dashboard API.
All configuration is loaded from a TOML config file.

Examples:
  speechadmin serve --config=config.toml
  speechadmin serve config.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = configPathFrom(globalFlags, args)
			return runServe(serveFlags)
		},
	}
	return cmd
}

func createAdminCommand(globalFlags *GlobalFlags, createFlags *AdminCreateFlags, listFlags *AdminListFlags) *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account",
		Long: `Create an admin account for dashboard login. Public registration
is disabled, so this is the only way to add admins.

Examples:
  speechadmin admin create --email=ops@example.com --password=secret --config=config.toml
  speechadmin admin create --email=ops@example.com --config=config.toml   # password from SPEECHADMIN_PASSWORD`,
		RunE: func(cmd *cobra.Command, args []string) error {
			createFlags.ConfigPath = configPathFrom(globalFlags, nil)
			return runAdminCreate(createFlags)
		},
	}
	createCmd.Flags().StringVar(&createFlags.Email, "email", "", "admin email (required)")
	createCmd.Flags().StringVar(&createFlags.Password, "password", "", "admin password (or SPEECHADMIN_PASSWORD env)")
	if err := createCmd.MarkFlagRequired("email"); err != nil {
		panic(err)
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List admin accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			listFlags.ConfigPath = configPathFrom(globalFlags, nil)
			return runAdminList(listFlags)
		},
	}

	adminCmd.AddCommand(createCmd, listCmd)
	return adminCmd
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("speechadmin %s\n", version)
		},
	}
}

func configPathFrom(globalFlags *GlobalFlags, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return globalFlags.ConfigPath
}
