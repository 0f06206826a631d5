package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aaveCustody/internal/config"
	"aaveCustody/internal/model"
	"aaveCustody/internal/storage/postgres"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List stored custody events",
		Args:  cobra.NoArgs,
		RunE:  runEvents,
	}
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("since", "", "only events at or after this time (unix seconds or RFC3339)")
	cmd.Flags().Int("limit", 100, "maximum events to list")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres event store schema",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func runEvents(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadEvents(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	since, err := config.ParseTimestamp(cfg.Since)
	if err != nil {
		return fmt.Errorf("since: %w", err)
	}

	return withStore(cfg.PGDSN, cfg.LogLevel, func(ctx context.Context, store *postgres.Store, logger *zap.Logger) error {
		events, err := store.ListEvents(ctx, since, cfg.Limit)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		logger.Debug("events listed", zap.Int("count", len(events)), zap.Time("since", since))
		if events == nil {
			events = []model.CustodyEvent{}
		}
		return writeResult(cmd.OutOrStdout(), events)
	})
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadEvents(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	return withStore(cfg.PGDSN, cfg.LogLevel, func(ctx context.Context, store *postgres.Store, logger *zap.Logger) error {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("schema applied", zap.String("pg_dsn", redactDSN(cfg.PGDSN)))
		return nil
	})
}

func withStore(dsn, level string, fn func(ctx context.Context, store *postgres.Store, logger *zap.Logger) error) error {
	logger, err := newLogger(level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if dsn == "" {
		return fmt.Errorf("pg dsn is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	return fn(ctx, store, logger)
}
