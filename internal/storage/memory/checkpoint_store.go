package memory

import (
	"context"
	"sync"
	"time"

	"market-ledger/internal/domain"
	"market-ledger/internal/storage"
)

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
type CheckpointStore struct {
	mu         sync.RWMutex
	checkpoint *domain.Checkpoint
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{}
}

var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// GetCheckpoint returns the saved cursor or ErrNotFound.
func (s *CheckpointStore) GetCheckpoint(_ context.Context) (*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.checkpoint == nil {
		return nil, storage.ErrNotFound
	}
	copy := *s.checkpoint
	return &copy, nil
}

// SetCheckpoint overwrites the cursor.
func (s *CheckpointStore) SetCheckpoint(_ context.Context, signature string, slot int64) error {
	if signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoint = &domain.Checkpoint{
		Signature: signature,
		Slot:      slot,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}
