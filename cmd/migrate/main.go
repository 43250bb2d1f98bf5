package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"market-ledger/internal/config"
	"market-ledger/internal/logger"
	"market-ledger/internal/storage/migrations"
	"market-ledger/internal/storage/postgres"
)

func main() {
	configFile := flag.String("config", "", "Path to config.yaml")
	envPath := flag.String("env", "", "Directory holding .env files (default: config/)")
	flag.Parse()

	cfg, err := config.Load(*configFile, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Debug: cfg.Debug, Level: cfg.Log.Level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate(ctx, cfg, log.Logger); err != nil {
		log.Error("migration failed", zap.Error(err))
		os.Exit(1)
	}
}

func migrate(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	log.Info("postgres migrated", zap.Strings("applied", applied))

	if cfg.Clickhouse.DSN == "" {
		return nil
	}
	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Clickhouse.DSN)
	if err != nil {
		return fmt.Errorf("clickhouse: %w", err)
	}
	defer conn.Close()
	log.Info("clickhouse migrated")
	return nil
}
