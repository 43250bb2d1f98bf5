package domain

// MarketStatus represents the lifecycle state of a market in the catalog.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "active"
	MarketStatusInactive MarketStatus = "inactive"
	MarketStatusResolved MarketStatus = "resolved"
)

// String returns the string representation of MarketStatus.
func (s MarketStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a known value.
func (s MarketStatus) IsValid() bool {
	return s == MarketStatusActive || s == MarketStatusInactive || s == MarketStatusResolved
}

// Market is a binary prediction market with one outcome token per side.
// Written by the external catalog sync; the ledger only reads it.
type Market struct {
	ID         string       // internal id
	ExternalID string       // catalog provider id
	YesMint    string       // YES outcome token mint
	NoMint     string       // NO outcome token mint
	Status     MarketStatus // lifecycle status
	Category   string
}

// Mints returns both outcome mints of the market.
func (m *Market) Mints() []string {
	return []string{m.YesMint, m.NoMint}
}

// HasMint reports whether mint is one of the market's outcome tokens.
func (m *Market) HasMint(mint string) bool {
	return mint != "" && (m.YesMint == mint || m.NoMint == mint)
}
