package ingestion

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"market-ledger/internal/chain"
	"market-ledger/internal/domain"
	"market-ledger/internal/observability"
	"market-ledger/internal/registry"
	"market-ledger/internal/solana"
	"market-ledger/internal/solana/stub"
	"market-ledger/internal/storage/memory"
)

const (
	mintYes       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	mintNo        = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	mintUntracked = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	alice         = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	bob           = "SysvarRent111111111111111111111111111111111"
)

// harness wires the ingestion components over in-memory stores and stub RPC/WS.
type harness struct {
	rpc      *stub.RPCClient
	ws       *stub.WSClient
	source   *chain.SolanaSource
	markets  *memory.MarketStore
	ledger   *memory.Ledger
	registry *registry.Registry
	syncer   *BalanceSyncer
	metrics  *observability.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	h := &harness{
		rpc:     stub.NewRPCClient(),
		ws:      stub.NewWSClient(16),
		markets: memory.NewMarketStore(),
		ledger:  memory.NewLedger(),
		metrics: observability.NewMetrics(prometheus.NewRegistry(), "test"),
	}
	require.NoError(t, h.markets.Upsert(ctx, &domain.Market{
		ID: "m1", YesMint: mintYes, NoMint: mintNo, Status: domain.MarketStatusActive,
	}))

	h.registry = registry.New(registry.Options{Markets: h.markets})
	require.NoError(t, h.registry.Refresh(ctx))

	for _, mint := range []string{mintYes, mintNo, mintUntracked} {
		data := make([]byte, solana.MintAccountSize)
		data[44] = 6
		h.rpc.SetAccount(mint, &solana.AccountInfo{Owner: solana.TokenProgramID, Data: data})
	}

	h.source = chain.NewSolanaSource(chain.SolanaSourceOptions{
		RPC:     h.rpc,
		WS:      h.ws,
		Retry:   chain.RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
		Metrics: h.metrics,
	})
	h.syncer = NewBalanceSyncer(BalanceSyncerOptions{
		Source:    h.source,
		Markets:   h.markets,
		Positions: h.ledger.Positions(),
		Metrics:   h.metrics,
	})
	return h
}

func (h *harness) setBalance(t *testing.T, owner, mint string, raw uint64) {
	t.Helper()
	ata, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	h.rpc.SetBalance(ata, &solana.TokenAccountBalance{Amount: raw, Decimals: 6})
}

func (h *harness) amount(t *testing.T, owner, mint string) string {
	t.Helper()
	p, err := h.ledger.Positions().Get(context.Background(), domain.PositionKey{Wallet: owner, MarketID: "m1", TokenMint: mint})
	require.NoError(t, err)
	return p.ObservedAmount.String()
}

// tokenAccountData builds the raw bytes of an SPL token account.
func tokenAccountData(t *testing.T, mint, owner string, amount uint64) []byte {
	t.Helper()
	m, err := base58.Decode(mint)
	require.NoError(t, err)
	o, err := base58.Decode(owner)
	require.NoError(t, err)

	data := make([]byte, solana.TokenAccountSize)
	copy(data[0:32], m)
	copy(data[32:64], o)
	binary.LittleEndian.PutUint64(data[64:72], amount)
	return data
}

// transferTx builds a jsonParsed transaction moving raw units of mint from one owner to another.
func transferTx(t *testing.T, sig string, slot int64, from, to, mint string, raw uint64) *solana.Transaction {
	t.Helper()
	src, dst := "src-"+sig, "dst-"+sig
	info, err := json.Marshal(map[string]interface{}{
		"source": src, "destination": dst, "authority": from, "amount": fmt.Sprint(raw),
	})
	require.NoError(t, err)

	return &solana.Transaction{
		Signature: sig,
		Slot:      slot,
		BlockTime: 1_714_564_800 + slot,
		Message: &solana.TransactionMessage{
			AccountKeys: []string{from, src, dst},
			Instructions: []solana.Instruction{{
				Program:   "spl-token",
				ProgramID: solana.TokenProgramID,
				Parsed:    &solana.ParsedInstruction{Type: "transfer", Info: info},
			}},
		},
		Meta: &solana.TransactionMeta{
			PostTokenBalances: []solana.TokenBalance{
				{AccountIndex: 1, Mint: mint, Owner: from, UITokenAmount: solana.UITokenAmount{Decimals: 6}},
				{AccountIndex: 2, Mint: mint, Owner: to, UITokenAmount: solana.UITokenAmount{Decimals: 6}},
			},
		},
	}
}

// history registers txs, given oldest first, as the signature history of address.
func (h *harness) history(t *testing.T, address string, txs ...*solana.Transaction) {
	t.Helper()
	sigs := make([]solana.SignatureInfo, 0, len(txs))
	for i := len(txs) - 1; i >= 0; i-- {
		h.rpc.AddTransaction(txs[i])
		sigs = append(sigs, solana.SignatureInfo{Signature: txs[i].Signature, Slot: txs[i].Slot})
	}
	h.rpc.AddSignatures(address, sigs)
}

type syncCall struct {
	owner, mint string
	slot        int64
}

// recordingSink records SyncOwner calls.
type recordingSink struct {
	mu    sync.Mutex
	calls []syncCall
	err   error
}

func (s *recordingSink) SyncOwner(_ context.Context, owner, mint string, slot int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, syncCall{owner, mint, slot})
	return nil
}

func (s *recordingSink) Calls() []syncCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]syncCall(nil), s.calls...)
}
