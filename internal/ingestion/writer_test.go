package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-ledger/internal/accounting"
	"market-ledger/internal/chain"
	"market-ledger/internal/domain"
)

func startWriter(t *testing.T, w *Writer) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); _ = w.Run(ctx) }()
	t.Cleanup(func() { cancel(); <-done })
	return cancel
}

func TestWriter_RecordTradeAndBalanceShareOneGoroutine(t *testing.T) {
	h := newHarness(t)
	rec := accounting.NewReconciler(accounting.Options{Ledger: h.ledger})
	w := NewWriter(WriterOptions{Balances: h.syncer, Recorder: rec, Metrics: h.metrics})
	startWriter(t, w)
	ctx := context.Background()

	trade := &domain.Trade{
		Wallet: alice, MarketID: "m1", TokenMint: mintYes, Side: domain.SideBuy,
		Price: decimal.RequireFromString("0.4"), Amount: decimal.NewFromInt(10),
		Signature: "sig-buy", Timestamp: time.Now(),
	}
	got, created, err := w.RecordTrade(ctx, trade)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "sig-buy", got.Signature)

	key := domain.PositionKey{Wallet: alice, MarketID: "m1", TokenMint: mintYes}
	p, err := h.ledger.Positions().Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "10", p.Amount.String())
	assert.True(t, p.ObservedAmount.IsZero())

	// The chain says 7: the observed amount is overwritten, the lot stays.
	require.True(t, w.Enqueue(chain.TokenAccountUpdate{Pubkey: "a", Mint: mintYes, Owner: alice, RawAmount: 7_000_000}))
	require.Eventually(t, func() bool { return h.amount(t, alice, mintYes) == "7" }, 2*time.Second, 10*time.Millisecond)

	p, err = h.ledger.Positions().Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "10", p.Amount.String())
	assert.Equal(t, "0.4", p.AverageEntryPrice.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PositionDivergences))

	_, created, err = w.RecordTrade(ctx, trade)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestWriter_ObservedOnlyPositionIsNotADivergence(t *testing.T) {
	h := newHarness(t)
	w := NewWriter(WriterOptions{Balances: h.syncer, Metrics: h.metrics})
	startWriter(t, w)

	require.True(t, w.Enqueue(chain.TokenAccountUpdate{Mint: mintYes, Owner: bob, RawAmount: 2_000_000}))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.PositionsSynced) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, testutil.ToFloat64(h.metrics.PositionDivergences))
	assert.Equal(t, "2", h.amount(t, bob, mintYes))
}

// gatedRecorder blocks RecordTrade until release is closed.
type gatedRecorder struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedRecorder) RecordTrade(_ context.Context, t *domain.Trade) (*domain.Trade, bool, error) {
	close(g.started)
	<-g.release
	return t, true, nil
}

func TestWriter_AcceptedCommandReportsOutcomeAfterCancel(t *testing.T) {
	h := newHarness(t)
	rec := &gatedRecorder{started: make(chan struct{}), release: make(chan struct{})}
	w := NewWriter(WriterOptions{Balances: h.syncer, Recorder: rec})
	startWriter(t, w)

	ctx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		created bool
		err     error
	}
	out := make(chan outcome, 1)
	go func() {
		_, created, err := w.RecordTrade(ctx, &domain.Trade{Signature: "gated"})
		out <- outcome{created, err}
	}()

	<-rec.started
	cancel()
	close(rec.release)

	select {
	case o := <-out:
		require.NoError(t, o.err)
		assert.True(t, o.created)
	case <-time.After(2 * time.Second):
		t.Fatal("RecordTrade did not return")
	}
}

func TestWriter_SyncOwner(t *testing.T) {
	h := newHarness(t)
	h.setBalance(t, bob, mintNo, 3_000_000)
	w := NewWriter(WriterOptions{Balances: h.syncer})
	startWriter(t, w)

	require.NoError(t, w.SyncOwner(context.Background(), bob, mintNo, 5))
	assert.Equal(t, "3", h.amount(t, bob, mintNo))
}

func TestWriter_FailedUpdateIsDiscarded(t *testing.T) {
	h := newHarness(t)
	w := NewWriter(WriterOptions{Balances: h.syncer, Metrics: h.metrics})
	startWriter(t, w)

	// mintUntracked has no market in the catalog.
	require.True(t, w.Enqueue(chain.TokenAccountUpdate{Mint: mintUntracked, Owner: alice, RawAmount: 1}))
	require.True(t, w.Enqueue(chain.TokenAccountUpdate{Mint: mintYes, Owner: alice, RawAmount: 1_000_000}))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.PositionsSynced) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.WriterErrors.WithLabelValues("balance_sync")))
	assert.Equal(t, "1", h.amount(t, alice, mintYes))
}

func TestWriter_CommandsAfterStop(t *testing.T) {
	h := newHarness(t)
	w := NewWriter(WriterOptions{Balances: h.syncer})
	cancel := startWriter(t, w)
	cancel()

	require.Eventually(t, func() bool {
		err := w.SyncOwner(context.Background(), alice, mintYes, 0)
		return err == ErrWriterStopped
	}, 2*time.Second, 10*time.Millisecond)
}
