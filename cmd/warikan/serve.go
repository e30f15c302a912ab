package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/susu3304/warikan/internal/api"
	"github.com/susu3304/warikan/internal/bot"
	"github.com/susu3304/warikan/internal/config"
	"github.com/susu3304/warikan/internal/db"
	"github.com/susu3304/warikan/internal/group"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Discord bot, the HTTP API and the reminder worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, logger, err := setup(config.ModeServe)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	svc := group.NewService(store, logger.Named("group"),
		group.WithCurrency(cfg.Currency),
		group.WithConcurrency(cfg.PlanConcurrency),
	)

	discordBot, err := bot.New(cfg.DiscordToken, store, svc, logger.Named("bot"), cfg.ReminderTick)
	if err != nil {
		return fmt.Errorf("failed to create discord bot: %w", err)
	}
	apiServer := api.New(cfg, svc, logger.Named("api"))

	if err := discordBot.Start(); err != nil {
		return fmt.Errorf("failed to start discord bot: %w", err)
	}
	defer func() {
		if err := discordBot.Stop(); err != nil {
			logger.Warn("failed to stop discord bot", zap.Error(err))
		}
	}()

	apiErr := make(chan error, 1)
	go func() { apiErr <- apiServer.Start() }()

	select {
	case <-ctx.Done():
	case err := <-apiErr:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return apiServer.Shutdown(shutdownCtx)
}
