package ingestion

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"market-ledger/internal/chain"
	"market-ledger/internal/domain"
	"market-ledger/internal/observability"
)

// DefaultQueueCapacity bounds the listener queue.
const DefaultQueueCapacity = 100

// ErrWriterStopped is returned by blocking commands once Run has returned.
var ErrWriterStopped = errors.New("writer stopped")

// command is a unit of ledger work executed on the writer goroutine.
type command struct {
	run  func(ctx context.Context)
	done chan struct{}
}

// Writer is the single goroutine that mutates positions at runtime.
// Listener updates arrive on a bounded queue and are dropped when it is full.
// Trade recording and backfill syncs arrive as blocking commands.
type Writer struct {
	events   chan chain.TokenAccountUpdate
	commands chan command
	stopped  chan struct{}
	running  atomic.Bool

	balances *BalanceSyncer
	recorder TradeRecorder
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// WriterOptions contains configuration for creating a Writer.
type WriterOptions struct {
	Balances      *BalanceSyncer
	Recorder      TradeRecorder
	QueueCapacity int // Default: 100
	Metrics       *observability.Metrics
	Logger        *zap.Logger
}

// NewWriter creates a new Writer. Call Run to start consuming.
func NewWriter(opts WriterOptions) *Writer {
	capacity := opts.QueueCapacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		events:   make(chan chain.TokenAccountUpdate, capacity),
		commands: make(chan command),
		stopped:  make(chan struct{}),
		balances: opts.Balances,
		recorder: opts.Recorder,
		metrics:  opts.Metrics,
		logger:   logger.Named("writer"),
	}
}

// Enqueue offers an update without blocking. It reports false when the
// queue is full and the update was dropped.
func (w *Writer) Enqueue(u chain.TokenAccountUpdate) bool {
	select {
	case w.events <- u:
		w.metrics.SetQueueDepth(len(w.events))
		return true
	default:
		return false
	}
}

// QueueLen returns the number of queued updates.
func (w *Writer) QueueLen() int {
	return len(w.events)
}

// Run drains updates and commands in arrival order until ctx is done.
// Queued updates are not drained on shutdown.
func (w *Writer) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("writer already running")
	}
	defer close(w.stopped)

	w.logger.Info("writer started", zap.Int("queue_capacity", cap(w.events)))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("writer stopping", zap.Int("discarded", len(w.events)))
			return nil
		case u := <-w.events:
			w.metrics.SetQueueDepth(len(w.events))
			w.apply(ctx, u)
		case cmd := <-w.commands:
			cmd.run(ctx)
			close(cmd.done)
		}
	}
}

func (w *Writer) apply(ctx context.Context, u chain.TokenAccountUpdate) {
	if err := w.balances.ApplyUpdate(ctx, u); err != nil {
		w.metrics.RecordWriterError("balance_sync")
		w.metrics.RecordEventDropped(observability.DropWriterFailed)
		w.logger.Warn("discarding update",
			zap.String("account", u.Pubkey),
			zap.String("owner", u.Owner),
			zap.String("mint", u.Mint),
			zap.Int64("slot", u.Slot),
			zap.Error(err))
	}
}

// do runs fn on the writer goroutine and waits for it to finish.
// ctx only bounds the wait for the writer to accept the command. Once
// accepted, do waits for fn so the caller always learns its outcome.
func (w *Writer) do(ctx context.Context, fn func(ctx context.Context)) error {
	cmd := command{run: fn, done: make(chan struct{})}
	select {
	case w.commands <- cmd:
	case <-w.stopped:
		return ErrWriterStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-cmd.done
	return nil
}

// RecordTrade records a trade on the writer goroutine.
func (w *Writer) RecordTrade(ctx context.Context, trade *domain.Trade) (*domain.Trade, bool, error) {
	var (
		out     *domain.Trade
		created bool
		err     error
	)
	if derr := w.do(ctx, func(ctx context.Context) {
		out, created, err = w.recorder.RecordTrade(ctx, trade)
	}); derr != nil {
		return nil, false, derr
	}
	if err != nil {
		w.metrics.RecordWriterError("record_trade")
	}
	return out, created, err
}

// SyncOwner re-reads a balance on the writer goroutine.
func (w *Writer) SyncOwner(ctx context.Context, owner, mint string, slot int64) error {
	var err error
	if derr := w.do(ctx, func(ctx context.Context) {
		err = w.balances.SyncOwner(ctx, owner, mint, slot)
	}); derr != nil {
		return derr
	}
	if err != nil {
		w.metrics.RecordWriterError("balance_sync")
	}
	return err
}

var (
	_ TradeRecorder = (*Writer)(nil)
	_ BalanceSink   = (*Writer)(nil)
	_ BalanceSink   = (*BalanceSyncer)(nil)
)
