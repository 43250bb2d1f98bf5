package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// String returns the string representation of Side.
func (s Side) String() string {
	return string(s)
}

// IsValid checks if the side is a valid value.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// Trade is an immutable record of one executed trade.
// Signature is the on-chain transaction signature and the sole dedup key.
type Trade struct {
	ID        string // uuid
	Wallet    string
	MarketID  string
	TokenMint string
	Side      Side
	Price     decimal.Decimal
	Amount    decimal.Decimal
	Fee       decimal.Decimal // protocol fee accrued to the treasury, in TokenMint units
	Signature string
	Timestamp time.Time
}

// PositionKey returns the key of the position this trade affects.
func (t *Trade) PositionKey() PositionKey {
	return PositionKey{Wallet: t.Wallet, MarketID: t.MarketID, TokenMint: t.TokenMint}
}

// Validate checks the trade before it enters the ledger.
func (t *Trade) Validate() error {
	switch {
	case t.Signature == "":
		return fmt.Errorf("trade: empty signature")
	case t.Wallet == "" || t.MarketID == "" || t.TokenMint == "":
		return fmt.Errorf("trade %s: wallet, market and mint are required", t.Signature)
	case !t.Side.IsValid():
		return fmt.Errorf("trade %s: invalid side %q", t.Signature, t.Side)
	case t.Amount.IsNegative():
		return fmt.Errorf("trade %s: negative amount", t.Signature)
	case t.Price.IsNegative():
		return fmt.Errorf("trade %s: negative price", t.Signature)
	case t.Fee.IsNegative():
		return fmt.Errorf("trade %s: negative fee", t.Signature)
	}
	return nil
}
