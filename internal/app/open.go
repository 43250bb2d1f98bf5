package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"market-ledger/internal/config"
	"market-ledger/internal/logger"
	"market-ledger/internal/observability"
	"market-ledger/internal/pubsub"
	"market-ledger/internal/solana"
	chstore "market-ledger/internal/storage/clickhouse"
	"market-ledger/internal/storage/migrations"
	pgstore "market-ledger/internal/storage/postgres"
)

// closers releases resources in reverse order of acquisition.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) close(log *zap.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			log.Warn("close resource", zap.Error(err))
		}
	}
}

// Open connects to every configured backend, applies migrations and returns
// the assembled App with a function releasing all resources. Postgres and the
// Solana endpoints are required; ClickHouse, Redis and NATS are optional.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, func(), error) {
	var res closers
	fail := func(err error) (*App, func(), error) {
		res.close(log.Logger)
		return nil, nil, err
	}

	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN, pgstore.PoolOptions{
		MaxConns: cfg.Postgres.MaxConns,
		MinConns: cfg.Postgres.MinConns,
	})
	if err != nil {
		return fail(err)
	}
	res.add(func() error { pool.Close(); return nil })

	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		return fail(fmt.Errorf("postgres migrations: %w", err))
	}
	if len(applied) > 0 {
		log.Info("applied postgres migrations", zap.Strings("files", applied))
	}

	stores := Stores{
		Markets:     pgstore.NewMarketStore(pool),
		Ledger:      pgstore.NewLedger(pool),
		Checkpoints: pgstore.NewCheckpointStore(pool),
		Revenue:     pgstore.NewRevenueStore(pool),
	}
	checks := map[string]observability.HealthCheck{
		"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
	}

	if cfg.Clickhouse.DSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Clickhouse.DSN)
		if err != nil {
			return fail(fmt.Errorf("clickhouse: %w", err))
		}
		res.add(conn.Close)
		stores.RevenueMirror = chstore.NewRevenueStore(conn)
		checks["clickhouse"] = func(ctx context.Context) error { return conn.Ping(ctx) }
	}

	var rdb redis.UniversalClient
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fail(fmt.Errorf("ping redis: %w", err))
		}
		res.add(client.Close)
		rdb = client
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	var publisher pubsub.Publisher = pubsub.Noop{}
	if cfg.NATS.URL != "" {
		nats, err := pubsub.NewNATSPublisher(pubsub.NATSConfig{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		}, log.Logger)
		if err != nil {
			return fail(fmt.Errorf("nats: %w", err))
		}
		res.add(nats.Close)
		publisher = nats
		checks["nats"] = func(context.Context) error {
			if !nats.Ready() {
				return errors.New("not connected")
			}
			return nil
		}
	}

	rpc := solana.NewHTTPClient(cfg.RPCURL)
	ws, err := solana.NewWSClient(ctx, cfg.WSURL, nil, log.Logger)
	if err != nil {
		return fail(fmt.Errorf("connect websocket: %w", err))
	}
	res.add(ws.Close)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := New(Deps{
		Config:       cfg,
		Stores:       stores,
		RPC:          rpc,
		WS:           ws,
		Redis:        rdb,
		Publisher:    publisher,
		Sentry:       log.Sentry,
		Registerer:   reg,
		Gatherer:     reg,
		HealthChecks: checks,
		Logger:       log.Logger,
	})
	return a, func() { res.close(log.Logger) }, nil
}
