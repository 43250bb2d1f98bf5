package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// TokenTransfer is one SPL token movement parsed from a confirmed transaction.
// From and To are wallet (owner) addresses, not token accounts.
type TokenTransfer struct {
	Signature string
	Slot      int64
	From      string
	To        string
	Mint      string
	RawAmount uint64
	Decimals  uint8
	Timestamp time.Time
}

// UIAmount scales the raw amount by the mint decimals.
func (t *TokenTransfer) UIAmount() decimal.Decimal {
	return ScaleRawAmount(t.RawAmount, t.Decimals)
}

// ScaleRawAmount converts a raw token amount into a UI quantity.
func ScaleRawAmount(raw uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -int32(decimals))
}

// Checkpoint is the durable backfill cursor.
type Checkpoint struct {
	Signature string
	Slot      int64
	UpdatedAt time.Time
}
