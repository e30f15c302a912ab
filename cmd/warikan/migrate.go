package main

import (
	"fmt"
	"net/url"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/susu3304/warikan/internal/config"
	"github.com/susu3304/warikan/internal/db"
	"go.uber.org/zap"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(config.ModeMigrate)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			store, err := db.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			logger.Info("migrations applied", zap.String("database", redact(cfg.DatabaseURL)))
			pterm.Success.Println("Database is up to date")
			return nil
		},
	}
}

// redact hides the password of a database URL before it is logged.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
