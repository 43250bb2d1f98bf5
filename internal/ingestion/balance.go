package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"market-ledger/internal/chain"
	"market-ledger/internal/domain"
	"market-ledger/internal/observability"
	"market-ledger/internal/pubsub"
	"market-ledger/internal/storage"
)

// BalanceSyncer overwrites observed position amounts with on-chain balances
// and cross-checks them against the trade-ledger lot. It never touches the
// lot itself. It is not safe for concurrent use on the same position; the Writer
// serializes calls at runtime.
type BalanceSyncer struct {
	source    chain.Source
	markets   storage.MarketStore
	positions storage.PositionStore
	publisher pubsub.Publisher
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time

	// onNewWallet is called the first time a wallet gets a position.
	onNewWallet func(wallet string)
}

// BalanceSyncerOptions contains configuration for creating a BalanceSyncer.
type BalanceSyncerOptions struct {
	Source      chain.Source
	Markets     storage.MarketStore
	Positions   storage.PositionStore
	Publisher   pubsub.Publisher // Default: pubsub.Noop
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	OnNewWallet func(wallet string)
}

// NewBalanceSyncer creates a new BalanceSyncer.
func NewBalanceSyncer(opts BalanceSyncerOptions) *BalanceSyncer {
	s := &BalanceSyncer{
		source:      opts.Source,
		markets:     opts.Markets,
		positions:   opts.Positions,
		publisher:   opts.Publisher,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		now:         time.Now,
		onNewWallet: opts.OnNewWallet,
	}
	if s.publisher == nil {
		s.publisher = pubsub.Noop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("balance")
	return s
}

// ApplyUpdate stores the amount carried by a token account notification.
func (s *BalanceSyncer) ApplyUpdate(ctx context.Context, u chain.TokenAccountUpdate) error {
	return s.store(ctx, u.Owner, u.Mint, u.Slot, func(decimals uint8) (decimal.Decimal, error) {
		return domain.ScaleRawAmount(u.RawAmount, decimals), nil
	})
}

// SyncOwner fetches owner's current balance of mint and stores it.
// A missing token account stores zero.
func (s *BalanceSyncer) SyncOwner(ctx context.Context, owner, mint string, slot int64) error {
	return s.store(ctx, owner, mint, slot, func(uint8) (decimal.Decimal, error) {
		bal, err := s.source.GetAccountBalance(ctx, owner, mint)
		if err != nil {
			return decimal.Zero, err
		}
		if bal == nil {
			return decimal.Zero, nil
		}
		return bal.UIAmount(), nil
	})
}

func (s *BalanceSyncer) store(ctx context.Context, owner, mint string, slot int64, amount func(decimals uint8) (decimal.Decimal, error)) error {
	market, err := s.markets.GetByMint(ctx, mint)
	if err != nil {
		return fmt.Errorf("resolve market for %s: %w", mint, err)
	}

	decimals, err := s.source.GetTokenMintDecimals(ctx, mint)
	if err != nil {
		return fmt.Errorf("decimals of %s: %w", mint, err)
	}

	qty, err := amount(decimals)
	if err != nil {
		return fmt.Errorf("balance of %s/%s: %w", owner, mint, err)
	}

	key := domain.PositionKey{Wallet: owner, MarketID: market.ID, TokenMint: mint}
	isNew := false
	if s.onNewWallet != nil {
		existing, err := s.positions.ListByWallet(ctx, owner)
		if err != nil {
			return fmt.Errorf("list positions of %s: %w", owner, err)
		}
		isNew = len(existing) == 0
	}

	if err := s.positions.SetObservedAmount(ctx, key, qty); err != nil {
		return fmt.Errorf("set amount %s/%s: %w", owner, mint, err)
	}
	if err := s.crossCheck(ctx, key); err != nil {
		return err
	}

	s.metrics.RecordPositionSynced()
	s.publisher.PublishPositionSynced(ctx, pubsub.PositionSynced{
		Wallet:    owner,
		MarketID:  market.ID,
		TokenMint: mint,
		Amount:    qty,
		Slot:      slot,
		SyncedAt:  s.now().UTC(),
	})
	s.logger.Debug("position synced",
		zap.String("wallet", owner),
		zap.String("market_id", market.ID),
		zap.String("mint", mint),
		zap.String("amount", qty.String()),
		zap.Int64("slot", slot))

	if isNew {
		s.onNewWallet(owner)
	}
	return nil
}

// crossCheck reports a lot that disagrees with the freshly observed balance.
// Positions no trade has touched are not compared.
func (s *BalanceSyncer) crossCheck(ctx context.Context, key domain.PositionKey) error {
	p, err := s.positions.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("reload position %s/%s: %w", key.Wallet, key.TokenMint, err)
	}
	if !p.HasTrades() {
		return nil
	}
	if diff := p.Divergence(); !diff.IsZero() {
		s.metrics.RecordPositionDivergence()
		s.logger.Info("position diverges from trade ledger",
			zap.String("wallet", key.Wallet),
			zap.String("market_id", key.MarketID),
			zap.String("mint", key.TokenMint),
			zap.String("ledger_amount", p.Amount.String()),
			zap.String("observed_amount", p.ObservedAmount.String()),
			zap.String("difference", diff.String()))
	}
	return nil
}

// isFinal reports whether a sync error will repeat on every attempt.
func isFinal(err error) bool {
	return errors.Is(err, storage.ErrNotFound) ||
		errors.Is(err, chain.ErrAccountNotFound) ||
		errors.Is(err, chain.ErrMalformedAccount)
}
