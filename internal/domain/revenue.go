package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RevenueStatus classifies the outcome of a fee reconciliation check.
type RevenueStatus string

const (
	RevenueStatusOK              RevenueStatus = "ok"
	RevenueStatusMissingTreasury RevenueStatus = "missing_treasury_account"
	RevenueStatusMismatch        RevenueStatus = "ledger_mismatch"
	RevenueStatusFetchFailed     RevenueStatus = "fetch_failed"
)

// Revenue is an append-only snapshot of expected fee accrual for one
// (market, asset mint) at the time of a reconciliation run.
type Revenue struct {
	ID             string // uuid
	MarketID       string
	AssetMint      string
	ExpectedAmount decimal.Decimal
	ActualAmount   decimal.Decimal
	Status         RevenueStatus
	RecordedAt     time.Time
}

// FeeTotal is the ledger-side fee sum for one (market, mint) group.
type FeeTotal struct {
	MarketID  string
	TokenMint string
	Total     decimal.Decimal
}
