// Package main is the entry point for the Code of Clans identity server.
//
// COMMANDS:
//
//	server serve          run the HTTP API (default)
//	server migrate        apply database migrations and exit
//	server create-admin   provision a staff superuser with a password
//
// Configuration always comes from the environment (and an optional .env
// file); see internal/config.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sakif/codeofclans/internal/auth"
	"github.com/sakif/codeofclans/internal/config"
	sqliteRepo "github.com/sakif/codeofclans/internal/repository/sqlite"
	"github.com/sakif/codeofclans/internal/server"
	"github.com/sakif/codeofclans/internal/service"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	root := &cobra.Command{
		Use:           "server",
		Short:         "Code of Clans identity backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ensureDBDir(cfg.DBPath)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			srv, err := server.New(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			// Start blocks until SIGINT or SIGTERM.
			return srv.Start()
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			// New migrates on open.
			db, err := sqliteRepo.New(cmd.Context(), cfg.DBPath)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", slog.String("database", cfg.DBPath))
			return db.Close()
		},
	}

	var admin service.AdminParams
	createAdminCmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a staff superuser that can use /api/auth/admin/login",
		RunE: func(cmd *cobra.Command, args []string) error {
			if admin.Password == "" {
				admin.Password = os.Getenv("ADMIN_PASSWORD")
			}
			if admin.Username == "" || admin.Password == "" {
				return fmt.Errorf("--username and --password (or ADMIN_PASSWORD) are required")
			}

			db, err := sqliteRepo.New(cmd.Context(), cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			resolver := service.NewIdentityResolver(db, logger)
			a, err := resolver.ProvisionAdmin(cmd.Context(), auth.NewPasswordService(), admin)
			if err != nil {
				return err
			}
			fmt.Printf("created admin %q (id %d)\n", a.Username, a.ID)
			return nil
		},
	}
	createAdminCmd.Flags().StringVar(&admin.Username, "username", "", "admin username")
	createAdminCmd.Flags().StringVar(&admin.Email, "email", "", "admin email (optional)")
	createAdminCmd.Flags().StringVar(&admin.Password, "password", "", "admin password (env ADMIN_PASSWORD)")

	root.AddCommand(serveCmd, migrateCmd, createAdminCmd)

	// Running the bare binary starts the server.
	root.RunE = serveCmd.RunE

	if err := root.ExecuteContext(context.Background()); err != nil {
		logger.Error("command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// ensureDBDir creates the directory holding the SQLite file, like mkdir -p.
func ensureDBDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	return nil
}
