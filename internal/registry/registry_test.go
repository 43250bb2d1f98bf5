package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-ledger/internal/domain"
	"market-ledger/internal/storage/memory"
)

const (
	mintA = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	mintB = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	mintC = "So11111111111111111111111111111111111111112"
	mintD = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

type failingMarkets struct {
	*memory.MarketStore
	err error
}

func (f *failingMarkets) ListActive(ctx context.Context) ([]*domain.Market, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.MarketStore.ListActive(ctx)
}

func seed(t *testing.T, store *memory.MarketStore, markets ...*domain.Market) {
	t.Helper()
	for _, m := range markets {
		require.NoError(t, store.Upsert(context.Background(), m))
	}
}

func TestRegistry_Refresh(t *testing.T) {
	store := memory.NewMarketStore()
	seed(t, store,
		&domain.Market{ID: "m1", YesMint: mintA, NoMint: mintB, Status: domain.MarketStatusActive},
		&domain.Market{ID: "m2", YesMint: mintC, NoMint: mintD, Status: domain.MarketStatusResolved},
	)

	r := New(Options{Markets: store})
	assert.False(t, r.Contains(mintA))

	require.NoError(t, r.Refresh(context.Background()))
	assert.True(t, r.Contains(mintA))
	assert.True(t, r.Contains(mintB))
	assert.False(t, r.Contains(mintC), "inactive markets are not tracked")
	assert.Equal(t, []string{mintA, mintB}, r.Mints())

	id, ok := r.MarketID(mintB)
	require.True(t, ok)
	assert.Equal(t, "m1", id)
}

func TestRegistry_SkipsMalformedMints(t *testing.T) {
	store := memory.NewMarketStore()
	seed(t, store, &domain.Market{ID: "m1", YesMint: mintA, NoMint: "not-base58-0OIl", Status: domain.MarketStatusActive})

	r := New(Options{Markets: store})
	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, 1, r.Len())
	assert.True(t, r.Contains(mintA))
}

func TestRegistry_FailedRefreshKeepsPreviousSet(t *testing.T) {
	store := &failingMarkets{MarketStore: memory.NewMarketStore()}
	seed(t, store.MarketStore, &domain.Market{ID: "m1", YesMint: mintA, NoMint: mintB, Status: domain.MarketStatusActive})

	r := New(Options{Markets: store})
	require.NoError(t, r.Refresh(context.Background()))

	store.err = errors.New("db down")
	require.Error(t, r.Refresh(context.Background()))
	assert.True(t, r.Contains(mintA))
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_ConcurrentReadsDuringRefresh(t *testing.T) {
	store := memory.NewMarketStore()
	seed(t, store, &domain.Market{ID: "m1", YesMint: mintA, NoMint: mintB, Status: domain.MarketStatusActive})
	r := New(Options{Markets: store})
	require.NoError(t, r.Refresh(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				assert.True(t, r.Contains(mintA))
			}
		}()
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, r.Refresh(context.Background()))
	}
	wg.Wait()
}
