package ingestion

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"market-ledger/internal/chain"
	"market-ledger/internal/observability"
)

// UpdateQueue accepts decoded updates without blocking.
type UpdateQueue interface {
	Enqueue(u chain.TokenAccountUpdate) bool
}

// Listener streams token account changes and forwards those of tracked
// mints to the queue. It never touches storage.
type Listener struct {
	source   chain.Source
	registry MintTracker
	queue    UpdateQueue
	filter   chain.AccountFilter
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// ListenerOptions contains configuration for creating a Listener.
type ListenerOptions struct {
	Source   chain.Source
	Registry MintTracker
	Queue    UpdateQueue
	Filter   *chain.AccountFilter // Default: chain.TokenAccountFilter()
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// NewListener creates a new Listener.
func NewListener(opts ListenerOptions) *Listener {
	filter := chain.TokenAccountFilter()
	if opts.Filter != nil {
		filter = *opts.Filter
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		source:   opts.Source,
		registry: opts.Registry,
		queue:    opts.Queue,
		filter:   filter,
		metrics:  opts.Metrics,
		logger:   logger.Named("listener"),
	}
}

// Run subscribes and forwards updates until ctx is done. It returns an error
// if the subscription cannot be opened or ends while ctx is still live.
func (l *Listener) Run(ctx context.Context) error {
	notifications, err := l.source.SubscribeAccountChanges(ctx, l.filter)
	if err != nil {
		return fmt.Errorf("subscribe token accounts: %w", err)
	}
	l.logger.Info("subscribed to token accounts",
		zap.String("program", l.filter.ProgramID),
		zap.Uint64("data_size", l.filter.DataSize))

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notifications:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("account subscription closed")
			}
			l.metrics.RecordEventReceived()

			u, err := chain.DecodeTokenAccountUpdate(n)
			if err != nil {
				l.metrics.RecordEventDropped(observability.DropMalformed)
				l.logger.Debug("dropping malformed account", zap.String("account", n.Pubkey), zap.Error(err))
				continue
			}
			if !l.registry.Contains(u.Mint) {
				l.metrics.RecordEventDropped(observability.DropUntracked)
				continue
			}
			if !l.queue.Enqueue(u) {
				l.metrics.RecordEventDropped(observability.DropQueueFull)
				l.logger.Warn("queue full, dropping update",
					zap.String("account", u.Pubkey),
					zap.String("owner", u.Owner),
					zap.String("mint", u.Mint),
					zap.Int64("slot", u.Slot))
			}
		}
	}
}
