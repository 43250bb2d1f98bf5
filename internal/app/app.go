// Package app assembles the ledger indexer from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"market-ledger/internal/accounting"
	"market-ledger/internal/alerting"
	"market-ledger/internal/chain"
	"market-ledger/internal/config"
	"market-ledger/internal/ingestion"
	"market-ledger/internal/leaderboard"
	"market-ledger/internal/observability"
	"market-ledger/internal/pubsub"
	"market-ledger/internal/reconciliation"
	"market-ledger/internal/registry"
	"market-ledger/internal/scheduler"
	"market-ledger/internal/solana"
	"market-ledger/internal/storage"
)

// Stores groups the persistence the indexer runs on.
type Stores struct {
	Markets     storage.MarketStore
	Ledger      storage.Ledger
	Checkpoints storage.CheckpointStore
	Revenue     storage.RevenueStore
	// RevenueMirror is optional.
	RevenueMirror storage.RevenueStore
}

// Deps are the resources an App is assembled from. Optional fields may be nil.
type Deps struct {
	Config    *config.Config
	Stores    Stores
	RPC       solana.RPCClient
	WS        solana.WSClient
	Redis     redis.UniversalClient
	Publisher pubsub.Publisher
	Sentry    *sentry.Client

	Registerer   prometheus.Registerer
	Gatherer     prometheus.Gatherer
	HealthChecks map[string]observability.HealthCheck
	Logger       *zap.Logger
}

// App is the assembled indexer.
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics

	Registry       *registry.Registry
	Source         *chain.SolanaSource
	Reconciler     *accounting.Reconciler
	Writer         *ingestion.Writer
	Backfiller     *ingestion.Backfiller
	Listener       *ingestion.Listener
	WalletIndexer  *ingestion.WalletIndexer
	Reconciliation *reconciliation.Engine
	Leaderboard    *leaderboard.Publisher // nil without Redis

	scheduler *scheduler.Scheduler
	server    *observability.Server // nil when metrics.addr is empty
}

// New wires every component. It performs no I/O.
func New(deps Deps) *App {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = pubsub.Noop{}
	}
	metrics := observability.NewMetrics(deps.Registerer, cfg.Metrics.Namespace)

	var decimals chain.DecimalsCache
	if deps.Redis != nil {
		decimals = chain.NewRedisDecimalsCache(deps.Redis, cfg.Redis.Prefix)
	}

	a := &App{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		scheduler: scheduler.New(logger, metrics),
	}

	a.Registry = registry.New(registry.Options{
		Markets:         deps.Stores.Markets,
		RefreshInterval: cfg.Registry.RefreshInterval,
		Logger:          logger,
		Metrics:         metrics,
	})
	a.Source = chain.NewSolanaSource(chain.SolanaSourceOptions{
		RPC: deps.RPC,
		WS:  deps.WS,
		Retry: chain.RetryPolicy{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
		},
		Decimals: decimals,
		Metrics:  metrics,
		Logger:   logger,
	})
	a.Reconciler = accounting.NewReconciler(accounting.Options{
		Ledger:    deps.Stores.Ledger,
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    logger,
	})

	syncer := ingestion.NewBalanceSyncer(ingestion.BalanceSyncerOptions{
		Source:    a.Source,
		Markets:   deps.Stores.Markets,
		Positions: deps.Stores.Ledger.Positions(),
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    logger,
		OnNewWallet: func(wallet string) {
			a.WalletIndexer.Enqueue(wallet)
		},
	})
	a.Writer = ingestion.NewWriter(ingestion.WriterOptions{
		Balances:      syncer,
		Recorder:      a.Reconciler,
		QueueCapacity: cfg.Listener.QueueCapacity,
		Metrics:       metrics,
		Logger:        logger,
	})
	a.WalletIndexer = ingestion.NewWalletIndexer(ingestion.WalletIndexerOptions{
		Source:   a.Source,
		Registry: a.Registry,
		Trades:   deps.Stores.Ledger.Trades(),
		PageSize: cfg.Backfill.PageSize,
		Logger:   logger,
	})
	a.Backfiller = ingestion.NewBackfiller(ingestion.BackfillOptions{
		Source:      a.Source,
		Registry:    a.Registry,
		Checkpoints: deps.Stores.Checkpoints,
		Balances:    a.Writer,
		PageSize:    cfg.Backfill.PageSize,
		Metrics:     metrics,
		Logger:      logger,
	})
	a.Listener = ingestion.NewListener(ingestion.ListenerOptions{
		Source:   a.Source,
		Registry: a.Registry,
		Queue:    a.Writer,
		Metrics:  metrics,
		Logger:   logger,
	})

	sinks := []alerting.Sink{alerting.NewLogSink(logger)}
	if deps.Sentry != nil {
		sinks = append(sinks, alerting.NewSentrySink(deps.Sentry, logger))
	}
	a.Reconciliation = reconciliation.NewEngine(reconciliation.Options{
		Trades:          deps.Stores.Ledger.Trades(),
		Balances:        a.Source,
		Revenue:         deps.Stores.Revenue,
		Mirror:          deps.Stores.RevenueMirror,
		Alerts:          alerting.NewMulti(metrics, sinks...),
		TreasuryAddress: cfg.Reconciliation.TreasuryAddress,
		Workers:         cfg.Reconciliation.Workers,
		Tolerance:       decimal.NewFromFloat(cfg.Reconciliation.Tolerance),
		Metrics:         metrics,
		Logger:          logger,
	})

	if deps.Redis != nil {
		a.Leaderboard = leaderboard.New(leaderboard.Options{
			Client:    deps.Redis,
			Prefix:    cfg.Redis.Prefix,
			Positions: deps.Stores.Ledger.Positions(),
			Users:     deps.Stores.Ledger.Users(),
			Logger:    logger,
		})
	}

	if cfg.Metrics.Addr != "" && deps.Gatherer != nil {
		a.server = observability.NewServer(cfg.Metrics.Addr,
			observability.NewRouter(deps.Gatherer, deps.HealthChecks), logger)
	}
	return a
}

// Metrics returns the metrics the components record to.
func (a *App) Metrics() *observability.Metrics {
	return a.metrics
}

// Run loads the registry, backfills, then follows the chain until ctx is done.
// Periodic jobs start once the registry is loaded.
func (a *App) Run(ctx context.Context) error {
	if err := a.Registry.Refresh(ctx); err != nil {
		return fmt.Errorf("load mint registry: %w", err)
	}

	if a.server != nil {
		a.server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("metrics server shutdown", zap.Error(err))
			}
		}()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Writer.Run(ctx) })
	g.Go(func() error { return a.WalletIndexer.Run(ctx) })
	g.Go(func() error {
		if a.cfg.Backfill.Enabled {
			res, err := a.Backfiller.Run(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("backfill: %w", err)
			}
			a.logger.Info("backfill complete",
				zap.Int("mints", res.Mints),
				zap.Strings("failed_mints", res.FailedMints),
				zap.Int("signatures", res.Signatures),
				zap.Int("balances_synced", res.BalancesSynced),
				zap.String("stalled_at", res.StalledAt),
				zap.Duration("duration", res.Duration))
		}
		return a.Listener.Run(ctx)
	})

	a.schedule(ctx)

	err := g.Wait()
	a.scheduler.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("indexer stopped")
	return nil
}

func (a *App) schedule(ctx context.Context) {
	a.Registry.Run(ctx, a.scheduler)
	a.scheduler.Every(ctx, "fee_reconciliation", a.cfg.Reconciliation.Interval, func(ctx context.Context) error {
		_, err := a.Reconciliation.Run(ctx)
		return err
	})
	if a.Leaderboard != nil {
		a.scheduler.Every(ctx, "leaderboard", a.cfg.Leaderboard.Interval, a.Leaderboard.Recompute)
	} else {
		a.logger.Info("leaderboard disabled, redis not configured")
	}
}

// IndexWallet loads the registry and indexes one wallet's history.
func (a *App) IndexWallet(ctx context.Context, wallet string) (*ingestion.IndexResult, error) {
	if !solana.IsValidAddress(wallet) {
		return nil, fmt.Errorf("%w: wallet %q", storage.ErrInvalidInput, wallet)
	}
	if err := a.Registry.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("load mint registry: %w", err)
	}
	return a.WalletIndexer.IndexWallet(ctx, wallet)
}

// Reconcile runs one fee reconciliation pass.
func (a *App) Reconcile(ctx context.Context) (*reconciliation.RunResult, error) {
	return a.Reconciliation.Run(ctx)
}
