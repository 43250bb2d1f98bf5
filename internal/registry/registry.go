// Package registry maintains the set of outcome mints the ledger tracks.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"market-ledger/internal/observability"
	"market-ledger/internal/scheduler"
	"market-ledger/internal/solana"
	"market-ledger/internal/storage"
)

// DefaultRefreshInterval is how often Run rebuilds the set.
const DefaultRefreshInterval = 5 * time.Minute

// mintSet is immutable once published.
type mintSet struct {
	markets map[string]string // mint -> market id
}

// Registry is a lock-free view of the mints of active markets.
type Registry struct {
	markets  storage.MarketStore
	interval time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics

	set atomic.Pointer[mintSet]
}

// Options contains configuration for creating a Registry.
type Options struct {
	Markets         storage.MarketStore
	RefreshInterval time.Duration // Default: 5m
	Logger          *zap.Logger
	Metrics         *observability.Metrics
}

// New creates an empty registry. Call Refresh to populate it.
func New(opts Options) *Registry {
	interval := opts.RefreshInterval
	if interval == 0 {
		interval = DefaultRefreshInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Registry{
		markets:  opts.Markets,
		interval: interval,
		logger:   logger.Named("registry"),
		metrics:  opts.Metrics,
	}
	r.set.Store(&mintSet{markets: map[string]string{}})
	return r
}

// Refresh rebuilds the set from active markets and swaps it in.
// On error the previous set stays in place.
func (r *Registry) Refresh(ctx context.Context) error {
	markets, err := r.markets.ListActive(ctx)
	if err != nil {
		r.metrics.RecordRegistryRefreshError()
		return fmt.Errorf("list active markets: %w", err)
	}

	next := &mintSet{markets: make(map[string]string, 2*len(markets))}
	for _, m := range markets {
		for _, mint := range m.Mints() {
			if !solana.IsValidAddress(mint) {
				r.logger.Warn("skipping malformed mint",
					zap.String("market_id", m.ID),
					zap.String("mint", mint))
				continue
			}
			next.markets[mint] = m.ID
		}
	}

	prev := r.set.Swap(next)
	r.metrics.SetTrackedMints(len(next.markets))
	if len(prev.markets) != len(next.markets) {
		r.logger.Info("tracked mints updated",
			zap.Int("markets", len(markets)),
			zap.Int("mints", len(next.markets)),
			zap.Int("previous", len(prev.markets)))
	}
	return nil
}

// Contains reports whether mint belongs to an active market.
func (r *Registry) Contains(mint string) bool {
	_, ok := r.set.Load().markets[mint]
	return ok
}

// MarketID returns the market owning mint according to the current set.
func (r *Registry) MarketID(mint string) (string, bool) {
	id, ok := r.set.Load().markets[mint]
	return id, ok
}

// Mints returns the tracked mints in lexical order.
func (r *Registry) Mints() []string {
	set := r.set.Load()
	out := make([]string, 0, len(set.markets))
	for mint := range set.markets {
		out = append(out, mint)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of tracked mints.
func (r *Registry) Len() int {
	return len(r.set.Load().markets)
}

// Run refreshes the set on the configured interval until ctx is done.
func (r *Registry) Run(ctx context.Context, s *scheduler.Scheduler) {
	s.Every(ctx, "registry_refresh", r.interval, r.Refresh)
}
