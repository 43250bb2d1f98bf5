package postgres

import (
	"context"
	"fmt"

	"market-ledger/internal/domain"
	"market-ledger/internal/storage"
)

// CheckpointStore is a PostgreSQL implementation of storage.CheckpointStore.
// The cursor lives in a single row with id = 1.
type CheckpointStore struct {
	pool *Pool
}

// NewCheckpointStore creates a new PostgreSQL checkpoint store.
func NewCheckpointStore(pool *Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// GetCheckpoint returns the last processed signature.
func (s *CheckpointStore) GetCheckpoint(ctx context.Context) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	err := s.pool.QueryRow(ctx, `
		SELECT signature, slot, updated_at
		FROM checkpoint
		WHERE id = 1
	`).Scan(&cp.Signature, &cp.Slot, &cp.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return &cp, nil
}

// SetCheckpoint upserts the singleton row.
func (s *CheckpointStore) SetCheckpoint(ctx context.Context, signature string, slot int64) error {
	if signature == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO checkpoint (id, signature, slot, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET signature = EXCLUDED.signature,
		    slot = EXCLUDED.slot,
		    updated_at = NOW()
	`, signature, slot)
	if err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}
