package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"market-ledger/internal/chain"
	"market-ledger/internal/domain"
	"market-ledger/internal/observability"
	"market-ledger/internal/solana"
	"market-ledger/internal/storage"
)

// DefaultPageSize is the getSignaturesForAddress page limit.
const DefaultPageSize = 1000

// Backfiller replays history missed since the last checkpoint.
type Backfiller struct {
	source      chain.Source
	registry    MintTracker
	checkpoints storage.CheckpointStore
	balances    BalanceSink
	pageSize    int
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// BackfillOptions contains configuration for creating a Backfiller.
type BackfillOptions struct {
	Source      chain.Source
	Registry    MintTracker
	Checkpoints storage.CheckpointStore
	Balances    BalanceSink
	PageSize    int // Default: 1000
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// NewBackfiller creates a new Backfiller.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backfiller{
		source:      opts.Source,
		registry:    opts.Registry,
		checkpoints: opts.Checkpoints,
		balances:    opts.Balances,
		pageSize:    pageSize,
		metrics:     opts.Metrics,
		logger:      logger.Named("backfill"),
	}
}

// BackfillResult contains statistics from a backfill run.
type BackfillResult struct {
	Mints          int
	FailedMints    []string
	Signatures     int
	FailedTxs      int // signatures of failed transactions, skipped
	BalancesSynced int
	Checkpoint     string
	// StalledAt is the signature whose replay failed and ended the run.
	StalledAt string
	Duration  time.Duration
}

// Run replays history newer than the checkpoint for every tracked mint as one
// chronological stream, ordered by slot and deduplicated by signature. The
// checkpoint advances after each signature and therefore only moves forward.
//
// A mint whose history cannot be listed is logged and skipped; the others are
// still replayed, but the checkpoint is held so the next run lists it again.
// A transient replay failure ends the run before the checkpoint passes it.
func (b *Backfiller) Run(ctx context.Context) (*BackfillResult, error) {
	start := time.Now()
	result := &BackfillResult{}

	cp, err := b.checkpoints.GetCheckpoint(ctx)
	switch {
	case err == nil:
		result.Checkpoint = cp.Signature
	case errors.Is(err, storage.ErrNotFound):
		cp = nil
	default:
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	mints := b.registry.Mints()
	b.logger.Info("backfill starting", zap.Int("mints", len(mints)), zap.String("until", result.Checkpoint))

	sigs, err := b.collect(ctx, mints, cp, result)
	if err != nil {
		return result, err
	}
	hold := len(result.FailedMints) > 0
	if hold {
		b.logger.Warn("checkpoint held, some mint histories could not be listed",
			zap.Strings("failed_mints", result.FailedMints))
	}

	for _, sig := range sigs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if sig.Err != nil {
			result.FailedTxs++
		} else if err := b.replay(ctx, sig, result); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.StalledAt = sig.Signature
			b.logger.Error("backfill stalled", zap.String("signature", sig.Signature), zap.Int64("slot", sig.Slot), zap.Error(err))
			break
		}

		if !hold {
			if err := b.checkpoints.SetCheckpoint(ctx, sig.Signature, sig.Slot); err != nil {
				return result, fmt.Errorf("save checkpoint: %w", err)
			}
			result.Checkpoint = sig.Signature
		}
		result.Signatures++
		b.metrics.RecordBackfillSignature(sig.Slot)
	}

	result.Duration = time.Since(start)
	b.logger.Info("backfill complete",
		zap.Int("mints", result.Mints),
		zap.Int("failed_mints", len(result.FailedMints)),
		zap.Int("signatures", result.Signatures),
		zap.Int("failed_txs", result.FailedTxs),
		zap.Int("balances_synced", result.BalancesSynced),
		zap.String("checkpoint", result.Checkpoint),
		zap.String("stalled_at", result.StalledAt),
		zap.Duration("took", result.Duration))
	return result, nil
}

// collect lists every mint's history after cp and merges it oldest-first.
// A signature touching several mints appears once. Signatures in slots
// before the checkpoint are dropped.
func (b *Backfiller) collect(ctx context.Context, mints []string, cp *domain.Checkpoint, result *BackfillResult) ([]solana.SignatureInfo, error) {
	var until string
	if cp != nil {
		until = cp.Signature
	}

	seen := make(map[string]bool)
	var merged []solana.SignatureInfo
	for _, mint := range mints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Mints++

		sigs, err := collectSignatures(ctx, b.source, mint, until, b.pageSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.FailedMints = append(result.FailedMints, mint)
			b.metrics.RecordBackfillMintFailure()
			b.logger.Error("backfill failed for mint", zap.String("mint", mint), zap.Error(err))
			continue
		}
		for _, sig := range sigs {
			if seen[sig.Signature] {
				continue
			}
			if cp != nil && (sig.Slot < cp.Slot || sig.Signature == cp.Signature) {
				continue
			}
			seen[sig.Signature] = true
			merged = append(merged, sig)
		}
		b.logger.Debug("listed mint history", zap.String("mint", mint), zap.Int("signatures", len(sigs)))
	}

	// Each mint's list is already oldest-first; a stable sort keeps that order within a slot.
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Slot < merged[j].Slot })
	return merged, nil
}

func (b *Backfiller) replay(ctx context.Context, sig solana.SignatureInfo, result *BackfillResult) error {
	transfers, err := b.source.ParseTransactionTransfers(ctx, sig.Signature)
	if err != nil {
		return err
	}

	type ownerMint struct{ owner, mint string }
	seen := make(map[ownerMint]bool)
	for _, t := range transfers {
		if !b.registry.Contains(t.Mint) {
			continue
		}
		for _, owner := range []string{t.From, t.To} {
			k := ownerMint{owner, t.Mint}
			if owner == "" || seen[k] {
				continue
			}
			seen[k] = true

			if err := b.balances.SyncOwner(ctx, owner, t.Mint, sig.Slot); err != nil {
				if isFinal(err) {
					b.logger.Warn("skipping balance sync",
						zap.String("owner", owner),
						zap.String("mint", t.Mint),
						zap.Error(err))
					continue
				}
				return err
			}
			result.BalancesSynced++
		}
	}
	return nil
}

// collectSignatures pages address history newest-first down to until
// (exclusive) and returns it oldest-first.
func collectSignatures(ctx context.Context, source chain.Source, address, until string, pageSize int) ([]solana.SignatureInfo, error) {
	var (
		all    []solana.SignatureInfo
		before string
	)
	for {
		page, err := source.GetSignatureHistory(ctx, address, chain.SignatureQuery{
			Before: before,
			Until:  until,
			Limit:  pageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("signature history: %w", err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
		before = page[len(page)-1].Signature
	}

	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}
