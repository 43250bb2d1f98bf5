// Package reconciliation compares fees recorded in the ledger with the
// balances held by the protocol treasury and alerts on divergence.
package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"market-ledger/internal/alerting"
	"market-ledger/internal/chain"
	"market-ledger/internal/domain"
	"market-ledger/internal/observability"
	"market-ledger/internal/storage"
)

// Defaults.
const (
	DefaultInterval = 24 * time.Hour
	DefaultWorkers  = 4
)

// DefaultTolerance is the relative divergence above which a mismatch is raised.
var DefaultTolerance = decimal.RequireFromString("0.01")

// BalanceReader reads an owner's token balance.
type BalanceReader interface {
	GetAccountBalance(ctx context.Context, owner, mint string) (*chain.TokenBalance, error)
}

// Engine runs fee reconciliation.
type Engine struct {
	trades    storage.TradeStore
	balances  BalanceReader
	revenue   storage.RevenueStore
	mirror    storage.RevenueStore
	alerts    alerting.Sink
	treasury  string
	workers   int
	tolerance decimal.Decimal
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// Options contains configuration for creating an Engine.
type Options struct {
	Trades   storage.TradeStore
	Balances BalanceReader
	Revenue  storage.RevenueStore
	// Mirror optionally receives a copy of every snapshot (ClickHouse).
	Mirror          storage.RevenueStore
	Alerts          alerting.Sink
	TreasuryAddress string
	Workers         int             // Default: 4
	Tolerance       decimal.Decimal // Default: 0.01
	Metrics         *observability.Metrics
	Logger          *zap.Logger
	Now             func() time.Time
}

// NewEngine creates a new Engine.
func NewEngine(opts Options) *Engine {
	e := &Engine{
		trades:    opts.Trades,
		balances:  opts.Balances,
		revenue:   opts.Revenue,
		mirror:    opts.Mirror,
		alerts:    opts.Alerts,
		treasury:  opts.TreasuryAddress,
		workers:   opts.Workers,
		tolerance: opts.Tolerance,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if e.workers <= 0 {
		e.workers = DefaultWorkers
	}
	if e.tolerance.IsZero() {
		e.tolerance = DefaultTolerance
	}
	if e.alerts == nil {
		e.alerts = alerting.NewLogSink(opts.Logger)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.logger = e.logger.Named("reconciliation")
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Classify compares expected fees with the treasury balance. A missing or
// zero balance against positive fees is a missing account; otherwise a
// relative difference |expected-actual|/actual above tolerance is a mismatch.
func Classify(expected, actual decimal.Decimal, present bool, tolerance decimal.Decimal) domain.RevenueStatus {
	if !present || actual.IsZero() {
		if expected.IsPositive() {
			return domain.RevenueStatusMissingTreasury
		}
		return domain.RevenueStatusOK
	}
	diff := expected.Sub(actual).Abs()
	if diff.Div(actual.Abs()).GreaterThan(tolerance) {
		return domain.RevenueStatusMismatch
	}
	return domain.RevenueStatusOK
}

// RunResult summarizes one reconciliation run.
type RunResult struct {
	Skipped   bool
	Groups    int
	Snapshots []*domain.Revenue
	Alerts    int
	Failures  int
}

type check struct {
	total   domain.FeeTotal
	actual  decimal.Decimal
	present bool
	err     error
}

// Run checks every (market, mint) fee group with a positive total. It is
// skipped when no treasury address is configured. One group's failure does
// not stop the others.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	if e.treasury == "" {
		e.logger.Warn("treasury address not configured, skipping fee reconciliation")
		return &RunResult{Skipped: true}, nil
	}

	totals, err := e.trades.FeeTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum fees: %w", err)
	}

	var pending []domain.FeeTotal
	for _, total := range totals {
		if total.Total.IsPositive() {
			pending = append(pending, total)
		}
	}
	if len(pending) == 0 {
		e.logger.Info("no fees recorded, nothing to reconcile")
		return &RunResult{}, nil
	}

	pool := pond.NewResultPool[check](e.workers, pond.WithContext(ctx))
	defer pool.StopAndWait()

	group := pool.NewGroup()
	for _, total := range pending {
		group.Submit(func() check {
			c := check{total: total}
			bal, err := e.balances.GetAccountBalance(ctx, e.treasury, total.TokenMint)
			switch {
			case err != nil:
				c.err = err
			case bal != nil:
				c.actual = bal.UIAmount()
				c.present = true
			}
			return c
		})
	}

	checks, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("fetch treasury balances: %w", err)
	}

	result := &RunResult{Groups: len(checks)}
	recordedAt := e.now().UTC()
	for _, c := range checks {
		snap := &domain.Revenue{
			ID:             uuid.NewString(),
			MarketID:       c.total.MarketID,
			AssetMint:      c.total.TokenMint,
			ExpectedAmount: c.total.Total,
			ActualAmount:   c.actual,
			RecordedAt:     recordedAt,
		}

		if c.err != nil {
			result.Failures++
			snap.Status = domain.RevenueStatusFetchFailed
			e.logger.Error("treasury balance fetch failed",
				zap.String("market_id", c.total.MarketID),
				zap.String("mint", c.total.TokenMint),
				zap.Error(c.err))
		} else {
			snap.Status = Classify(c.total.Total, c.actual, c.present, e.tolerance)
		}

		if err := e.record(ctx, snap); err != nil {
			result.Failures++
			e.logger.Error("revenue snapshot not saved",
				zap.String("market_id", snap.MarketID),
				zap.String("mint", snap.AssetMint),
				zap.Error(err))
			continue
		}
		result.Snapshots = append(result.Snapshots, snap)
		e.metrics.RecordRevenueSnapshot(string(snap.Status))

		if e.alert(ctx, snap) {
			result.Alerts++
		}
	}

	e.logger.Info("fee reconciliation complete",
		zap.Int("groups", result.Groups),
		zap.Int("alerts", result.Alerts),
		zap.Int("failures", result.Failures))
	return result, nil
}

func (e *Engine) record(ctx context.Context, snap *domain.Revenue) error {
	if err := e.revenue.Append(ctx, snap); err != nil {
		return err
	}
	if e.mirror != nil {
		if err := e.mirror.Append(ctx, snap); err != nil {
			e.logger.Warn("revenue mirror append failed", zap.String("id", snap.ID), zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) alert(ctx context.Context, snap *domain.Revenue) bool {
	switch snap.Status {
	case domain.RevenueStatusMissingTreasury:
		e.alerts.SendAlert(ctx, string(snap.Status), fmt.Sprintf(
			"market %s: ledger expects %s fees in %s but the treasury token account is missing or empty",
			snap.MarketID, snap.ExpectedAmount, snap.AssetMint))
	case domain.RevenueStatusMismatch:
		e.alerts.SendAlert(ctx, string(snap.Status), fmt.Sprintf(
			"market %s: ledger expects %s fees in %s, treasury holds %s",
			snap.MarketID, snap.ExpectedAmount, snap.AssetMint, snap.ActualAmount))
	default:
		return false
	}
	return true
}
