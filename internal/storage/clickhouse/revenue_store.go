package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"market-ledger/internal/domain"
	"market-ledger/internal/storage"
)

// RevenueStore mirrors revenue snapshots into ClickHouse for reporting.
// MergeTree does not enforce uniqueness; Append checks the id first.
type RevenueStore struct {
	conn *Conn
}

// NewRevenueStore creates a new RevenueStore.
func NewRevenueStore(conn *Conn) *RevenueStore {
	return &RevenueStore{conn: conn}
}

// Compile-time interface check.
var _ storage.RevenueStore = (*RevenueStore)(nil)

// Append inserts one snapshot.
func (s *RevenueStore) Append(ctx context.Context, r *domain.Revenue) error {
	if r == nil || r.MarketID == "" || r.AssetMint == "" {
		return storage.ErrInvalidInput
	}
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return fmt.Errorf("%w: revenue id: %v", storage.ErrInvalidInput, err)
	}

	exists, err := s.exists(ctx, id)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO revenue_snapshots (
			id, market_id, asset_mint, expected_amount, actual_amount, status, recorded_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	if err := batch.Append(
		id, r.MarketID, r.AssetMint,
		r.ExpectedAmount, r.ActualAmount,
		string(r.Status), r.RecordedAt.UTC(),
	); err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// ListByMarket returns a market's snapshots ordered by recorded_at ASC.
func (s *RevenueStore) ListByMarket(ctx context.Context, marketID string) ([]*domain.Revenue, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, market_id, asset_mint, expected_amount, actual_amount, status, recorded_at
		FROM revenue_snapshots
		WHERE market_id = ?
		ORDER BY recorded_at ASC
	`, marketID)
	if err != nil {
		return nil, fmt.Errorf("query revenue: %w", err)
	}
	defer rows.Close()

	var result []*domain.Revenue
	for rows.Next() {
		var (
			id         uuid.UUID
			r          domain.Revenue
			expected   decimal.Decimal
			actual     decimal.Decimal
			status     string
			recordedAt time.Time
		)
		if err := rows.Scan(&id, &r.MarketID, &r.AssetMint, &expected, &actual, &status, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan revenue: %w", err)
		}
		r.ID = id.String()
		r.ExpectedAmount = expected
		r.ActualAmount = actual
		r.Status = domain.RevenueStatus(status)
		r.RecordedAt = recordedAt.UTC()
		result = append(result, &r)
	}
	return result, rows.Err()
}

func (s *RevenueStore) exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count() FROM revenue_snapshots WHERE id = ?
	`, id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
