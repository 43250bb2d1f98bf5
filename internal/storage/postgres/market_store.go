package postgres

import (
	"context"
	"fmt"

	"market-ledger/internal/domain"
	"market-ledger/internal/storage"
)

// MarketStore implements storage.MarketStore using PostgreSQL.
// Mint lookups go through the market_mints index table.
type MarketStore struct {
	pool *Pool
}

// NewMarketStore creates a new MarketStore.
func NewMarketStore(pool *Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MarketStore = (*MarketStore)(nil)

const marketColumns = `id, external_id, yes_mint, no_mint, status, category`

// ListActive returns active markets ordered by id.
func (s *MarketStore) ListActive(ctx context.Context) ([]*domain.Market, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+marketColumns+`
		FROM markets
		WHERE status = 'active'
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list active markets: %w", err)
	}
	defer rows.Close()

	var result []*domain.Market
	for rows.Next() {
		var m domain.Market
		if err := rows.Scan(&m.ID, &m.ExternalID, &m.YesMint, &m.NoMint, &m.Status, &m.Category); err != nil {
			return nil, fmt.Errorf("scan market: %w", err)
		}
		result = append(result, &m)
	}
	return result, rows.Err()
}

// GetByID retrieves a market by id.
func (s *MarketStore) GetByID(ctx context.Context, id string) (*domain.Market, error) {
	return s.getOne(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = $1`, id)
}

// GetByMint resolves the market owning an outcome mint.
func (s *MarketStore) GetByMint(ctx context.Context, mint string) (*domain.Market, error) {
	return s.getOne(ctx, `
		SELECT m.id, m.external_id, m.yes_mint, m.no_mint, m.status, m.category
		FROM market_mints mm
		JOIN markets m ON m.id = mm.market_id
		WHERE mm.mint = $1
	`, mint)
}

func (s *MarketStore) getOne(ctx context.Context, query string, arg string) (*domain.Market, error) {
	var m domain.Market
	err := s.pool.QueryRow(ctx, query, arg).
		Scan(&m.ID, &m.ExternalID, &m.YesMint, &m.NoMint, &m.Status, &m.Category)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get market: %w", err)
	}
	return &m, nil
}

// Upsert writes the market and rebuilds its mint index rows in one transaction.
func (s *MarketStore) Upsert(ctx context.Context, m *domain.Market) error {
	if m == nil || m.ID == "" || m.YesMint == "" || m.NoMint == "" || !m.Status.IsValid() {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO markets (id, external_id, yes_mint, no_mint, status, category, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE
		SET external_id = EXCLUDED.external_id,
		    yes_mint = EXCLUDED.yes_mint,
		    no_mint = EXCLUDED.no_mint,
		    status = EXCLUDED.status,
		    category = EXCLUDED.category,
		    updated_at = NOW()
	`, m.ID, m.ExternalID, m.YesMint, m.NoMint, string(m.Status), m.Category)
	if err != nil {
		return fmt.Errorf("upsert market: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM market_mints WHERE market_id = $1`, m.ID); err != nil {
		return fmt.Errorf("clear market mints: %w", err)
	}

	for side, mint := range map[string]string{"yes": m.YesMint, "no": m.NoMint} {
		_, err := tx.Exec(ctx, `
			INSERT INTO market_mints (mint, market_id, side) VALUES ($1, $2, $3)
		`, mint, m.ID, side)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("index mint %s: %w", mint, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
