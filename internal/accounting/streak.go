package accounting

import (
	"time"

	"market-ledger/internal/domain"
)

// UTCDay truncates t to midnight UTC of its calendar day.
func UTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextStreak returns the streak of wallet after a trade processed at now.
//
//	no previous trade -> 1
//	same day          -> unchanged
//	next day          -> +1
//	two or more days  -> 1
//
// A day before the last trading day, seen only under clock skew, leaves the
// streak unchanged.
// HighestStreak is raised to CurrentStreak when exceeded.
func NextStreak(prev *domain.UserStreak, wallet string, now time.Time) *domain.UserStreak {
	today := UTCDay(now)

	next := domain.UserStreak{Wallet: wallet}
	if prev != nil {
		next = *prev
		next.Wallet = wallet
	}

	switch {
	case next.LastTradeDate == nil:
		next.CurrentStreak = 1
		next.LastTradeDate = &today
	default:
		last := UTCDay(*next.LastTradeDate)
		days := int(today.Sub(last).Hours() / 24)
		switch {
		case days < 0:
			// clock moved backward; keep the newer date
		case days == 0:
			if next.CurrentStreak == 0 {
				next.CurrentStreak = 1
			}
		case days == 1:
			next.CurrentStreak++
			next.LastTradeDate = &today
		default:
			next.CurrentStreak = 1
			next.LastTradeDate = &today
		}
	}

	if next.CurrentStreak > next.HighestStreak {
		next.HighestStreak = next.CurrentStreak
	}
	return &next
}
