package memory

import (
	"context"
	"sort"
	"sync"

	"market-ledger/internal/domain"
	"market-ledger/internal/storage"
)

// MarketStore is an in-memory implementation of storage.MarketStore.
type MarketStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.Market
	byMint map[string]string // mint -> market id
}

// NewMarketStore creates a new in-memory market store.
func NewMarketStore() *MarketStore {
	return &MarketStore{
		data:   make(map[string]*domain.Market),
		byMint: make(map[string]string),
	}
}

var _ storage.MarketStore = (*MarketStore)(nil)

// ListActive returns active markets ordered by ID.
func (s *MarketStore) ListActive(_ context.Context) ([]*domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Market
	for _, m := range s.data {
		if m.Status == domain.MarketStatusActive {
			copy := *m
			result = append(result, &copy)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// GetByID retrieves a market by ID.
func (s *MarketStore) GetByID(_ context.Context, id string) (*domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *m
	return &copy, nil
}

// GetByMint resolves a market from one of its outcome mints.
func (s *MarketStore) GetByMint(_ context.Context, mint string) (*domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byMint[mint]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *s.data[id]
	return &copy, nil
}

// Upsert inserts or replaces a market and re-indexes its mints.
func (s *MarketStore) Upsert(_ context.Context, m *domain.Market) error {
	if m == nil || m.ID == "" || !m.Status.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, mint := range m.Mints() {
		if mint == "" {
			continue
		}
		if owner, ok := s.byMint[mint]; ok && owner != m.ID {
			return storage.ErrDuplicateKey
		}
	}

	if prev, ok := s.data[m.ID]; ok {
		for _, mint := range prev.Mints() {
			delete(s.byMint, mint)
		}
	}

	copy := *m
	s.data[m.ID] = &copy
	for _, mint := range m.Mints() {
		if mint != "" {
			s.byMint[mint] = m.ID
		}
	}
	return nil
}
