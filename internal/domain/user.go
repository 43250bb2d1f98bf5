package domain

import "time"

// UserStreak tracks consecutive UTC calendar days with at least one trade.
// HighestStreak >= CurrentStreak always.
type UserStreak struct {
	Wallet        string
	LastTradeDate *time.Time // UTC midnight of the last trading day, nil before the first trade
	CurrentStreak int
	HighestStreak int
}
