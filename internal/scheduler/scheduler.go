// Package scheduler runs periodic tasks in their own goroutines.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"market-ledger/internal/observability"
)

// Task is one run of a periodic job.
type Task func(ctx context.Context) error

// Task outcomes reported to metrics.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomePanic = "panic"
)

// Scheduler starts periodic tasks and waits for them on shutdown.
type Scheduler struct {
	logger  *zap.Logger
	metrics *observability.Metrics
	wg      sync.WaitGroup
}

// New creates a new Scheduler.
func New(logger *zap.Logger, metrics *observability.Metrics) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{logger: logger.Named("scheduler"), metrics: metrics}
}

// Every starts task in a goroutine, running it every interval until ctx is done.
// The first run happens after one interval. A failing or panicking run is
// logged and the next tick still fires.
func (s *Scheduler) Every(ctx context.Context, name string, interval time.Duration, task Task) {
	if interval <= 0 {
		s.logger.Warn("task disabled: non-positive interval", zap.String("task", name))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.logger.Info("task scheduled", zap.String("task", name), zap.Duration("interval", interval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx, name, task)
			}
		}
	}()
}

// RunOnce runs task synchronously with panic recovery and reports the outcome.
func (s *Scheduler) RunOnce(ctx context.Context, name string, task Task) (err error) {
	start := time.Now()
	outcome := OutcomeOK

	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomePanic
			err = fmt.Errorf("task %s panicked: %v", name, r)
			s.logger.Error("task panicked", zap.String("task", name), zap.Any("panic", r), zap.Stack("stack"))
		}
		s.metrics.RecordTaskRun(name, outcome, time.Since(start))
	}()

	if err = task(ctx); err != nil {
		outcome = OutcomeError
		s.logger.Error("task failed", zap.String("task", name), zap.Error(err))
		return err
	}
	s.logger.Debug("task completed", zap.String("task", name), zap.Duration("took", time.Since(start)))
	return nil
}

// Wait blocks until every started task has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
