// Package pubsub fans ledger events out to NATS subscribers.
package pubsub

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"market-ledger/internal/domain"
)

// Subject suffixes, appended to the configured prefix.
const (
	SubjectTradesRecorded  = "trades.recorded"
	SubjectPositionsSynced = "positions.synced"
)

// TradeRecorded is published after a trade commits.
type TradeRecorded struct {
	ID        string          `json:"id"`
	Signature string          `json:"signature"`
	Wallet    string          `json:"wallet"`
	MarketID  string          `json:"market_id"`
	TokenMint string          `json:"token_mint"`
	Side      domain.Side     `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewTradeRecorded builds the message for a trade.
func NewTradeRecorded(t *domain.Trade) TradeRecorded {
	return TradeRecorded{
		ID:        t.ID,
		Signature: t.Signature,
		Wallet:    t.Wallet,
		MarketID:  t.MarketID,
		TokenMint: t.TokenMint,
		Side:      t.Side,
		Price:     t.Price,
		Amount:    t.Amount,
		Fee:       t.Fee,
		Timestamp: t.Timestamp,
	}
}

// PositionSynced is published after a balance overwrite.
type PositionSynced struct {
	Wallet    string          `json:"wallet"`
	MarketID  string          `json:"market_id"`
	TokenMint string          `json:"token_mint"`
	Amount    decimal.Decimal `json:"amount"`
	Slot      int64           `json:"slot,omitempty"`
	SyncedAt  time.Time       `json:"synced_at"`
}

// Publisher emits ledger events. Publishing is best-effort: failures are
// logged by the implementation and never returned to the ledger.
type Publisher interface {
	PublishTradeRecorded(ctx context.Context, msg TradeRecorded)
	PublishPositionSynced(ctx context.Context, msg PositionSynced)
	Close() error
}

// Noop discards every event.
type Noop struct{}

var _ Publisher = Noop{}

func (Noop) PublishTradeRecorded(context.Context, TradeRecorded)   {}
func (Noop) PublishPositionSynced(context.Context, PositionSynced) {}
func (Noop) Close() error                                          { return nil }
