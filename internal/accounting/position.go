// Package accounting records trades into the ledger: weighted-average cost
// basis, realized P&L and daily trading streaks.
package accounting

import (
	"time"

	"github.com/shopspring/decimal"

	"market-ledger/internal/domain"
)

// ApplyBuy returns p after buying qty at price. The new average is the
// quantity-weighted mean of the held lot and the purchase; when the resulting
// amount is zero the trade price is used.
func ApplyBuy(p *domain.Position, price, qty decimal.Decimal, at time.Time) *domain.Position {
	next := *p
	next.Amount = p.Amount.Add(qty)
	if next.Amount.IsZero() {
		next.AverageEntryPrice = price
	} else {
		cost := p.Amount.Mul(p.AverageEntryPrice).Add(qty.Mul(price))
		next.AverageEntryPrice = cost.Div(next.Amount)
	}
	next.UpdatedAt = at
	return &next
}

// ApplySell returns p after selling qty at price. P&L is realized against the
// current average, which stays unchanged. Amount never goes below zero.
func ApplySell(p *domain.Position, price, qty decimal.Decimal, at time.Time) *domain.Position {
	next := *p
	next.Amount = decimal.Max(decimal.Zero, p.Amount.Sub(qty))
	next.RealizedPnl = p.RealizedPnl.Add(qty.Mul(price.Sub(p.AverageEntryPrice)))
	next.UpdatedAt = at
	return &next
}
