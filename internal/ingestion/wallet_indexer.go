package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"market-ledger/internal/chain"
	"market-ledger/internal/domain"
	"market-ledger/internal/storage"
)

// WalletIndexer turns a wallet's full transaction history into trade rows.
// Direction comes from the transfer: BUY when the wallet receives, SELL
// otherwise. No price is discovered, so trades carry price 0 and fee 0.
//
// Rows are inserted into the trade store only. Positions, cost basis and
// streaks belong to quoted trades recorded through accounting.Reconciler.
type WalletIndexer struct {
	source   chain.Source
	registry MintTracker
	trades   storage.TradeStore
	pageSize int
	logger   *zap.Logger

	queue chan string
	mu    sync.Mutex
	seen  map[string]bool
}

// WalletIndexerOptions contains configuration for creating a WalletIndexer.
type WalletIndexerOptions struct {
	Source   chain.Source
	Registry MintTracker
	Trades   storage.TradeStore
	PageSize int // Default: 1000
	// QueueCapacity bounds wallets waiting for Run. Default: 100.
	QueueCapacity int
	Logger        *zap.Logger
}

// NewWalletIndexer creates a new WalletIndexer.
func NewWalletIndexer(opts WalletIndexerOptions) *WalletIndexer {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	capacity := opts.QueueCapacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WalletIndexer{
		source:   opts.Source,
		registry: opts.Registry,
		trades:   opts.Trades,
		pageSize: pageSize,
		logger:   logger.Named("wallet_indexer"),
		queue:    make(chan string, capacity),
		seen:     make(map[string]bool),
	}
}

// IndexResult contains statistics from indexing one wallet.
type IndexResult struct {
	Signatures int
	Skipped    int // already in the ledger or failed on chain
	Recorded   int
}

// IndexWallet inserts a trade for every unseen signature in which wallet
// sent or received a tracked mint. One trade is recorded per signature.
func (w *WalletIndexer) IndexWallet(ctx context.Context, wallet string) (*IndexResult, error) {
	sigs, err := collectSignatures(ctx, w.source, wallet, "", w.pageSize)
	if err != nil {
		return nil, fmt.Errorf("index wallet %s: %w", wallet, err)
	}

	result := &IndexResult{Signatures: len(sigs)}
	for _, sig := range sigs {
		if sig.Err != nil {
			result.Skipped++
			continue
		}
		exists, err := w.trades.ExistsBySignature(ctx, sig.Signature)
		if err != nil {
			return result, fmt.Errorf("check trade %s: %w", sig.Signature, err)
		}
		if exists {
			result.Skipped++
			continue
		}

		transfers, err := w.source.ParseTransactionTransfers(ctx, sig.Signature)
		if err != nil {
			return result, fmt.Errorf("parse %s: %w", sig.Signature, err)
		}

		trade := w.tradeFor(wallet, transfers)
		if trade == nil {
			continue
		}
		switch err := w.trades.Insert(ctx, trade); {
		case err == nil:
			result.Recorded++
		case errors.Is(err, storage.ErrDuplicateKey):
			result.Skipped++
		default:
			return result, fmt.Errorf("insert trade %s: %w", sig.Signature, err)
		}
	}

	w.logger.Info("wallet indexed",
		zap.String("wallet", wallet),
		zap.Int("signatures", result.Signatures),
		zap.Int("skipped", result.Skipped),
		zap.Int("recorded", result.Recorded))
	return result, nil
}

func (w *WalletIndexer) tradeFor(wallet string, transfers []domain.TokenTransfer) *domain.Trade {
	for _, t := range transfers {
		if t.From != wallet && t.To != wallet {
			continue
		}
		marketID, ok := w.registry.MarketID(t.Mint)
		if !ok {
			continue
		}

		side := domain.SideSell
		if t.To == wallet {
			side = domain.SideBuy
		}
		return &domain.Trade{
			ID:        uuid.NewString(),
			Wallet:    wallet,
			MarketID:  marketID,
			TokenMint: t.Mint,
			Side:      side,
			Price:     decimal.Zero,
			Amount:    t.UIAmount(),
			Fee:       decimal.Zero,
			Signature: t.Signature,
			Timestamp: t.Timestamp,
		}
	}
	return nil
}

// Enqueue schedules a wallet for indexing once per process lifetime.
// It never blocks; a full queue drops the wallet.
func (w *WalletIndexer) Enqueue(wallet string) {
	w.mu.Lock()
	if w.seen[wallet] {
		w.mu.Unlock()
		return
	}
	w.seen[wallet] = true
	w.mu.Unlock()

	select {
	case w.queue <- wallet:
	default:
		w.mu.Lock()
		delete(w.seen, wallet)
		w.mu.Unlock()
		w.logger.Warn("wallet queue full, dropping", zap.String("wallet", wallet))
	}
}

// Run indexes enqueued wallets until ctx is done.
func (w *WalletIndexer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case wallet := <-w.queue:
			if _, err := w.IndexWallet(ctx, wallet); err != nil && ctx.Err() == nil {
				w.logger.Error("wallet indexing failed", zap.String("wallet", wallet), zap.Error(err))
			}
		}
	}
}
