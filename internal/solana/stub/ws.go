package stub

import (
	"context"
	"sync"

	"market-ledger/internal/solana"
)

// WSClient implements solana.WSClient with a test-controlled channel.
type WSClient struct {
	mu      sync.Mutex
	ch      chan solana.AccountNotification
	filters []solana.ProgramFilter
	closed  bool
	err     error
}

var _ solana.WSClient = (*WSClient)(nil)

// NewWSClient creates a stub whose subscriptions read from a buffer of size n.
func NewWSClient(n int) *WSClient {
	return &WSClient{ch: make(chan solana.AccountNotification, n)}
}

// FailSubscribe makes the next SubscribeProgram call return err.
func (c *WSClient) FailSubscribe(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// SubscribeProgram returns the shared notification channel.
// The channel is closed when ctx is done.
func (c *WSClient) SubscribeProgram(ctx context.Context, filter solana.ProgramFilter) (<-chan solana.AccountNotification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		err := c.err
		c.err = nil
		return nil, err
	}
	c.filters = append(c.filters, filter)

	out := make(chan solana.AccountNotification)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-c.ch:
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Push queues a notification for delivery.
func (c *WSClient) Push(n solana.AccountNotification) {
	c.ch <- n
}

// Filters returns the filters subscribed so far.
func (c *WSClient) Filters() []solana.ProgramFilter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]solana.ProgramFilter(nil), c.filters...)
}

// Close marks the stub closed.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
