// Package ingestion moves chain state into the ledger: the live listener and
// its single writer, the checkpointed backfill and the wallet indexer.
package ingestion

import (
	"context"

	"market-ledger/internal/domain"
)

// MintTracker is the read side of the mint registry.
type MintTracker interface {
	Contains(mint string) bool
	MarketID(mint string) (string, bool)
	Mints() []string
}

// BalanceSink re-reads and stores the on-chain balance of owner for mint.
type BalanceSink interface {
	SyncOwner(ctx context.Context, owner, mint string, slot int64) error
}

// TradeRecorder records a trade idempotently.
type TradeRecorder interface {
	RecordTrade(ctx context.Context, trade *domain.Trade) (*domain.Trade, bool, error)
}
