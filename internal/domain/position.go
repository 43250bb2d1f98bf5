package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionKey identifies a position.
type PositionKey struct {
	Wallet    string
	MarketID  string
	TokenMint string
}

// Position is a wallet's holding of one outcome token.
//
// Amount, AverageEntryPrice and RealizedPnl form the trade-ledger lot and are
// written only by recorded trades. ObservedAmount is the last on-chain balance
// seen by the balance sync and is written only by it. The two amounts are
// compared, never merged. AverageEntryPrice is meaningless while Amount is zero.
type Position struct {
	Wallet            string
	MarketID          string
	TokenMint         string
	Amount            decimal.Decimal // UI-scaled lot quantity, never negative
	AverageEntryPrice decimal.Decimal // weighted-average cost basis per unit
	RealizedPnl       decimal.Decimal // cumulative, any sign
	ObservedAmount    decimal.Decimal // UI-scaled on-chain balance, never negative
	UpdatedAt         time.Time
}

// Key returns the position's identity.
func (p *Position) Key() PositionKey {
	return PositionKey{Wallet: p.Wallet, MarketID: p.MarketID, TokenMint: p.TokenMint}
}

// NewPosition returns an empty position for key.
func NewPosition(key PositionKey) *Position {
	return &Position{
		Wallet:            key.Wallet,
		MarketID:          key.MarketID,
		TokenMint:         key.TokenMint,
		Amount:            decimal.Zero,
		AverageEntryPrice: decimal.Zero,
		RealizedPnl:       decimal.Zero,
		ObservedAmount:    decimal.Zero,
	}
}

// HasTrades reports whether any recorded trade has touched the lot.
func (p *Position) HasTrades() bool {
	return !p.Amount.IsZero() || !p.AverageEntryPrice.IsZero() || !p.RealizedPnl.IsZero()
}

// Divergence returns ObservedAmount minus the lot Amount.
func (p *Position) Divergence() decimal.Decimal {
	return p.ObservedAmount.Sub(p.Amount)
}
