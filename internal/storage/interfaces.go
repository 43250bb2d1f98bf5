package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"market-ledger/internal/domain"
)

// MarketStore provides read access to the market catalog and its mint index.
// The catalog is written by an external sync job; Upsert exists for that job and tests.
type MarketStore interface {
	// ListActive returns all markets with status active.
	ListActive(ctx context.Context) ([]*domain.Market, error)

	// GetByID retrieves a market. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Market, error)

	// GetByMint resolves the market that owns an outcome mint. Returns ErrNotFound if none.
	GetByMint(ctx context.Context, mint string) (*domain.Market, error)

	// Upsert inserts or replaces a market and its mint index entries.
	// Returns ErrDuplicateKey if a mint already belongs to another market.
	Upsert(ctx context.Context, m *domain.Market) error
}

// CheckpointStore persists the backfill cursor (a singleton row).
type CheckpointStore interface {
	// GetCheckpoint returns the last processed signature.
	// Returns ErrNotFound if no checkpoint has been saved yet.
	GetCheckpoint(ctx context.Context) (*domain.Checkpoint, error)

	// SetCheckpoint overwrites the cursor.
	SetCheckpoint(ctx context.Context, signature string, slot int64) error
}

// PositionStore provides access to positions.
type PositionStore interface {
	// Get retrieves a position. Returns ErrNotFound if not exists.
	Get(ctx context.Context, key domain.PositionKey) (*domain.Position, error)

	// Upsert writes the trade-ledger lot (amount, average entry price, realized PnL).
	// ObservedAmount is never written by Upsert.
	Upsert(ctx context.Context, p *domain.Position) error

	// SetObservedAmount overwrites only the observed on-chain amount, creating
	// the position with an empty lot if needed.
	SetObservedAmount(ctx context.Context, key domain.PositionKey, amount decimal.Decimal) error

	// ListByWallet retrieves all positions of a wallet, ordered by market and mint.
	ListByWallet(ctx context.Context, wallet string) ([]*domain.Position, error)

	// RealizedPnlByWallet sums realized PnL across each wallet's positions.
	RealizedPnlByWallet(ctx context.Context) (map[string]decimal.Decimal, error)
}

// TradeStore provides access to the append-only trade ledger.
type TradeStore interface {
	// Insert adds a trade. Returns ErrDuplicateKey if the signature exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// GetBySignature retrieves a trade. Returns ErrNotFound if not exists.
	GetBySignature(ctx context.Context, signature string) (*domain.Trade, error)

	// ExistsBySignature reports whether a trade with signature is recorded.
	ExistsBySignature(ctx context.Context, signature string) (bool, error)

	// ListByWallet retrieves a wallet's trades ordered by timestamp ASC.
	ListByWallet(ctx context.Context, wallet string) ([]*domain.Trade, error)

	// FeeTotals sums fees grouped by (market, token mint), ordered by market then mint.
	FeeTotals(ctx context.Context) ([]domain.FeeTotal, error)
}

// UserStore provides access to per-wallet trading streaks.
type UserStore interface {
	// GetStreak retrieves a wallet's streak. Returns ErrNotFound if the wallet never traded.
	GetStreak(ctx context.Context, wallet string) (*domain.UserStreak, error)

	// UpsertStreak writes a wallet's streak.
	UpsertStreak(ctx context.Context, s *domain.UserStreak) error

	// ListStreaks returns every wallet's streak.
	ListStreaks(ctx context.Context) ([]*domain.UserStreak, error)
}

// RevenueStore is an append-only log of fee reconciliation snapshots.
type RevenueStore interface {
	// Append records a snapshot. Returns ErrDuplicateKey if the ID exists.
	Append(ctx context.Context, r *domain.Revenue) error

	// ListByMarket returns a market's snapshots ordered by RecordedAt ASC.
	ListByMarket(ctx context.Context, marketID string) ([]*domain.Revenue, error)
}

// LedgerTx exposes the stores that take part in one trade-recording transaction.
type LedgerTx interface {
	Trades() TradeStore
	Positions() PositionStore
	Users() UserStore
}

// Ledger exposes the ledger stores outside a transaction and runs fn inside
// a single transaction. fn's error rolls everything back.
type Ledger interface {
	LedgerTx
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error
}
