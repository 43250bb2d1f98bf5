package ingestion

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-ledger/internal/chain"
	"market-ledger/internal/observability"
	"market-ledger/internal/solana"
)

func TestListener_AppliesTrackedUpdates(t *testing.T) {
	h := newHarness(t)
	w := NewWriter(WriterOptions{Balances: h.syncer, Metrics: h.metrics})
	l := NewListener(ListenerOptions{Source: h.source, Registry: h.registry, Queue: w, Metrics: h.metrics})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = w.Run(ctx) }()
	go func() { defer wg.Done(); assert.NoError(t, l.Run(ctx)) }()

	h.ws.Push(solana.AccountNotification{Pubkey: "acct1", Slot: 10, Data: tokenAccountData(t, mintYes, alice, 2_500_000)})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.PositionsSynced) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "2.5", h.amount(t, alice, mintYes))

	filters := h.ws.Filters()
	require.Len(t, filters, 1)
	assert.Equal(t, uint64(solana.TokenAccountSize), filters[0].DataSize)

	cancel()
	wg.Wait()
}

func TestListener_DropsMalformedAndUntracked(t *testing.T) {
	h := newHarness(t)
	w := NewWriter(WriterOptions{Balances: h.syncer, Metrics: h.metrics})
	l := NewListener(ListenerOptions{Source: h.source, Registry: h.registry, Queue: w, Metrics: h.metrics})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); _ = l.Run(ctx) }()

	h.ws.Push(solana.AccountNotification{Pubkey: "short", Data: make([]byte, 40)})
	h.ws.Push(solana.AccountNotification{Pubkey: "other", Data: tokenAccountData(t, mintUntracked, alice, 1)})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.ListenerEventsReceived) == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ListenerEventsDropped.WithLabelValues(observability.DropMalformed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ListenerEventsDropped.WithLabelValues(observability.DropUntracked)))
	assert.Zero(t, w.QueueLen())
	assert.Zero(t, h.rpc.CallCount("getAccountInfo"), "dropped updates do no I/O")

	cancel()
	<-done
}

func TestListener_QueueOverflowDrops(t *testing.T) {
	h := newHarness(t)
	// Writer is never started, so the queue only fills.
	w := NewWriter(WriterOptions{Balances: h.syncer, QueueCapacity: 2, Metrics: h.metrics})
	l := NewListener(ListenerOptions{Source: h.source, Registry: h.registry, Queue: w, Metrics: h.metrics})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); _ = l.Run(ctx) }()

	for i := 0; i < 5; i++ {
		h.ws.Push(solana.AccountNotification{Pubkey: "acct", Slot: int64(i), Data: tokenAccountData(t, mintYes, alice, uint64(i))})
	}

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.ListenerEventsReceived) == 5
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, w.QueueLen())
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.ListenerEventsDropped.WithLabelValues(observability.DropQueueFull)))

	cancel()
	<-done
}

func TestListener_SubscribeFailure(t *testing.T) {
	h := newHarness(t)
	h.ws.FailSubscribe(assert.AnError)
	l := NewListener(ListenerOptions{Source: h.source, Registry: h.registry, Queue: NewWriter(WriterOptions{})})

	err := l.Run(context.Background())
	require.ErrorIs(t, err, assert.AnError)
}

// closingSource ends the subscription immediately.
type closingSource struct{ chain.Source }

func (closingSource) SubscribeAccountChanges(context.Context, chain.AccountFilter) (<-chan solana.AccountNotification, error) {
	ch := make(chan solana.AccountNotification)
	close(ch)
	return ch, nil
}

func TestListener_SubscriptionClosedUnexpectedly(t *testing.T) {
	h := newHarness(t)
	l := NewListener(ListenerOptions{Source: closingSource{h.source}, Registry: h.registry, Queue: NewWriter(WriterOptions{})})

	err := l.Run(context.Background())
	require.Error(t, err)
}
