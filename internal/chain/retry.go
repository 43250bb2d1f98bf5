package chain

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"market-ledger/internal/solana"
)

// RetryPolicy bounds retries of chain reads.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is 3 attempts with exponential backoff from 500ms up to 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

func (p RetryPolicy) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0 // bounded by attempts
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// isRetryable reports whether err may succeed on another attempt.
// Node-level JSON-RPC errors are final, except "node is behind" style codes.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrMalformedAccount) || errors.Is(err, ErrAccountNotFound) {
		return false
	}
	var rpcErr *solana.RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case -32004, -32005, -32014: // block not available, node unhealthy, block status unavailable
			return true
		}
		return false
	}
	return true
}

// retry runs fn under policy and returns its last result. The number of
// retries performed is returned for metrics.
func retry[T any](ctx context.Context, p RetryPolicy, logger *zap.Logger, method string, fn func() (T, error)) (T, int, error) {
	retries := 0
	op := func() (T, error) {
		v, err := fn()
		if err != nil && !isRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, next time.Duration) {
		retries++
		logger.Debug("chain call failed, retrying",
			zap.String("method", method),
			zap.Int("attempt", retries),
			zap.Duration("next_retry_in", next),
			zap.Error(err))
	}

	v, err := backoff.RetryNotifyWithData(op, p.backoff(ctx), notify)
	return v, retries, err
}
