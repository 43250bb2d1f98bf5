package memory

import (
	"context"
	"sort"
	"sync"

	"market-ledger/internal/domain"
	"market-ledger/internal/storage"
)

// RevenueStore is an in-memory implementation of storage.RevenueStore.
type RevenueStore struct {
	mu   sync.RWMutex
	data []*domain.Revenue
	ids  map[string]struct{}
}

// NewRevenueStore creates a new in-memory revenue store.
func NewRevenueStore() *RevenueStore {
	return &RevenueStore{ids: make(map[string]struct{})}
}

var _ storage.RevenueStore = (*RevenueStore)(nil)

// Append records a snapshot.
func (s *RevenueStore) Append(_ context.Context, r *domain.Revenue) error {
	if r == nil || r.ID == "" || r.MarketID == "" || r.AssetMint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[r.ID]; exists {
		return storage.ErrDuplicateKey
	}
	copy := *r
	s.data = append(s.data, &copy)
	s.ids[r.ID] = struct{}{}
	return nil
}

// ListByMarket returns a market's snapshots ordered by RecordedAt ASC.
func (s *RevenueStore) ListByMarket(_ context.Context, marketID string) ([]*domain.Revenue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Revenue
	for _, r := range s.data {
		if r.MarketID == marketID {
			copy := *r
			result = append(result, &copy)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].RecordedAt.Before(result[j].RecordedAt)
	})
	return result, nil
}

// All returns every snapshot in append order.
func (s *RevenueStore) All() []*domain.Revenue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Revenue, len(s.data))
	for i, r := range s.data {
		copy := *r
		result[i] = &copy
	}
	return result
}
