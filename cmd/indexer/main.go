package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"market-ledger/internal/app"
	"market-ledger/internal/config"
	"market-ledger/internal/logger"
)

func main() {
	configFile := flag.String("config", "", "Path to config.yaml (default: ./config.yaml or config/config.yaml)")
	envPath := flag.String("env", "", "Directory holding .env files (default: config/)")
	wallet := flag.String("wallet", "", "Index one wallet's trade history and exit")
	reconcile := flag.Bool("reconcile", false, "Run one fee reconciliation pass and exit")
	flag.Parse()

	cfg, err := config.Load(*configFile, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Debug:             cfg.Debug,
		Level:             cfg.Log.Level,
		SentryDSN:         cfg.Sentry.DSN,
		SentryEnvironment: cfg.Sentry.Environment,
		Tags:              map[string]string{"service": "indexer"},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *wallet, *reconcile); err != nil {
		log.Error("indexer failed", zap.Error(err))
		log.Flush(2 * time.Second)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, wallet string, reconcile bool) error {
	a, closeAll, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeAll()

	switch {
	case wallet != "":
		res, err := a.IndexWallet(ctx, wallet)
		if err != nil {
			return fmt.Errorf("index wallet: %w", err)
		}
		log.Info("wallet indexed",
			zap.String("wallet", wallet),
			zap.Int("signatures", res.Signatures),
			zap.Int("skipped", res.Skipped),
			zap.Int("recorded", res.Recorded))
		return nil
	case reconcile:
		res, err := a.Reconcile(ctx)
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
		log.Info("reconciliation finished",
			zap.Bool("skipped", res.Skipped),
			zap.Int("groups", res.Groups),
			zap.Int("alerts", res.Alerts),
			zap.Int("failures", res.Failures))
		return nil
	default:
		log.Info("indexer starting",
			zap.String("rpc", cfg.RPCURL),
			zap.Bool("backfill", cfg.Backfill.Enabled),
			zap.Int("queue_capacity", cfg.Listener.QueueCapacity))
		return a.Run(ctx)
	}
}
