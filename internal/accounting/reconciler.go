package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"market-ledger/internal/domain"
	"market-ledger/internal/observability"
	"market-ledger/internal/pubsub"
	"market-ledger/internal/storage"
)

// Reconciler records trades and keeps positions and streaks in step with them.
type Reconciler struct {
	ledger    storage.Ledger
	publisher pubsub.Publisher
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// Options contains configuration for creating a Reconciler.
type Options struct {
	Ledger    storage.Ledger
	Publisher pubsub.Publisher // Default: pubsub.Noop
	Metrics   *observability.Metrics
	Logger    *zap.Logger
	Now       func() time.Time // Default: time.Now
}

// NewReconciler creates a new Reconciler.
func NewReconciler(opts Options) *Reconciler {
	r := &Reconciler{
		ledger:    opts.Ledger,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if r.publisher == nil {
		r.publisher = pubsub.Noop{}
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.logger = r.logger.Named("accounting")
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// RecordTrade records trade exactly once per signature. It returns the stored
// trade and whether this call created it. A repeated signature returns the
// existing row with created=false and changes nothing.
//
// The streak update, trade insert and position update commit together.
// The streak counts the processing day (UTC), not the trade timestamp.
// Only the trade-ledger lot is updated; ObservedAmount belongs to the
// balance sync.
func (r *Reconciler) RecordTrade(ctx context.Context, trade *domain.Trade) (*domain.Trade, bool, error) {
	if err := trade.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	t := *trade
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = r.now().UTC()
	}

	var existing *domain.Trade
	err := r.ledger.WithinTx(ctx, func(tx storage.LedgerTx) error {
		found, err := tx.Trades().GetBySignature(ctx, t.Signature)
		switch {
		case err == nil:
			existing = found
			return nil
		case !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("lookup trade: %w", err)
		}

		if err := r.updateStreak(ctx, tx.Users(), t.Wallet, r.now()); err != nil {
			return err
		}
		if err := tx.Trades().Insert(ctx, &t); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
		return r.updatePosition(ctx, tx.Positions(), &t)
	})

	if errors.Is(err, storage.ErrDuplicateKey) {
		// Lost an insert race on the signature; the other writer's row wins.
		existing, err = r.ledger.Trades().GetBySignature(ctx, t.Signature)
		if err != nil {
			return nil, false, fmt.Errorf("load concurrent trade %s: %w", t.Signature, err)
		}
	}
	if err != nil {
		return nil, false, fmt.Errorf("record trade %s: %w", t.Signature, err)
	}
	if existing != nil {
		r.logger.Debug("trade already recorded", zap.String("signature", t.Signature))
		return existing, false, nil
	}

	r.metrics.RecordTradeIndexed(t.Timestamp, r.now())
	r.publisher.PublishTradeRecorded(ctx, pubsub.NewTradeRecorded(&t))
	r.logger.Debug("trade recorded",
		zap.String("signature", t.Signature),
		zap.String("wallet", t.Wallet),
		zap.String("side", t.Side.String()),
		zap.String("amount", t.Amount.String()),
		zap.String("price", t.Price.String()))
	return &t, true, nil
}

func (r *Reconciler) updateStreak(ctx context.Context, users storage.UserStore, wallet string, at time.Time) error {
	prev, err := users.GetStreak(ctx, wallet)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load streak: %w", err)
	}
	if err := users.UpsertStreak(ctx, NextStreak(prev, wallet, at)); err != nil {
		return fmt.Errorf("save streak: %w", err)
	}
	return nil
}

func (r *Reconciler) updatePosition(ctx context.Context, positions storage.PositionStore, t *domain.Trade) error {
	key := t.PositionKey()
	pos, err := positions.Get(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load position: %w", err)
	}

	now := r.now().UTC()
	var next *domain.Position
	switch t.Side {
	case domain.SideBuy:
		if pos == nil {
			pos = domain.NewPosition(key)
		}
		next = ApplyBuy(pos, t.Price, t.Amount, now)
	case domain.SideSell:
		if pos == nil || !pos.HasTrades() {
			r.logger.Debug("sell without position", zap.String("signature", t.Signature), zap.String("wallet", t.Wallet))
			return nil
		}
		next = ApplySell(pos, t.Price, t.Amount, now)
	}

	if err := positions.Upsert(ctx, next); err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}
