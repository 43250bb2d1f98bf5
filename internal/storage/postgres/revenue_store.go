package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"market-ledger/internal/domain"
	"market-ledger/internal/storage"
)

// RevenueStore implements storage.RevenueStore using PostgreSQL.
// Rows are only ever inserted.
type RevenueStore struct {
	pool *Pool
}

// NewRevenueStore creates a new RevenueStore.
func NewRevenueStore(pool *Pool) *RevenueStore {
	return &RevenueStore{pool: pool}
}

var _ storage.RevenueStore = (*RevenueStore)(nil)

// Append inserts one snapshot.
func (s *RevenueStore) Append(ctx context.Context, r *domain.Revenue) error {
	if r == nil || r.MarketID == "" || r.AssetMint == "" {
		return storage.ErrInvalidInput
	}
	if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("%w: revenue id: %v", storage.ErrInvalidInput, err)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO revenue (id, market_id, asset_mint, expected_amount, actual_amount, status, recorded_at)
		VALUES ($1::UUID, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7)
	`, r.ID, r.MarketID, r.AssetMint,
		r.ExpectedAmount.String(), r.ActualAmount.String(),
		string(r.Status), r.RecordedAt.UTC())
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert revenue: %w", err)
	}
	return nil
}

// ListByMarket returns a market's snapshots ordered by recorded_at ASC.
func (s *RevenueStore) ListByMarket(ctx context.Context, marketID string) ([]*domain.Revenue, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::TEXT, market_id, asset_mint, expected_amount::TEXT, actual_amount::TEXT, status, recorded_at
		FROM revenue
		WHERE market_id = $1
		ORDER BY recorded_at ASC, id ASC
	`, marketID)
	if err != nil {
		return nil, fmt.Errorf("list revenue: %w", err)
	}
	defer rows.Close()

	var result []*domain.Revenue
	for rows.Next() {
		var (
			r                domain.Revenue
			expected, actual string
			status           string
		)
		if err := rows.Scan(&r.ID, &r.MarketID, &r.AssetMint, &expected, &actual, &status, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan revenue: %w", err)
		}
		if r.ExpectedAmount, err = parseDecimal("expected_amount", expected); err != nil {
			return nil, err
		}
		if r.ActualAmount, err = parseDecimal("actual_amount", actual); err != nil {
			return nil, err
		}
		r.Status = domain.RevenueStatus(status)
		r.RecordedAt = r.RecordedAt.UTC()
		result = append(result, &r)
	}
	return result, rows.Err()
}
