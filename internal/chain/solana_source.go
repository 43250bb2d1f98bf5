package chain

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"market-ledger/internal/domain"
	"market-ledger/internal/observability"
	"market-ledger/internal/solana"
)

// SolanaSourceOptions configures SolanaSource.
type SolanaSourceOptions struct {
	RPC      solana.RPCClient
	WS       solana.WSClient
	Retry    RetryPolicy
	Decimals DecimalsCache
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// SolanaSource implements Source over the Solana RPC and WebSocket clients.
type SolanaSource struct {
	rpc      solana.RPCClient
	ws       solana.WSClient
	retry    RetryPolicy
	decimals DecimalsCache
	metrics  *observability.Metrics
	logger   *zap.Logger
}

var _ Source = (*SolanaSource)(nil)

// NewSolanaSource creates a new SolanaSource.
func NewSolanaSource(opts SolanaSourceOptions) *SolanaSource {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Decimals == nil {
		opts.Decimals = NewMemoryDecimalsCache()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &SolanaSource{
		rpc:      opts.RPC,
		ws:       opts.WS,
		retry:    opts.Retry,
		decimals: opts.Decimals,
		metrics:  opts.Metrics,
		logger:   opts.Logger.Named("chain"),
	}
}

func call[T any](ctx context.Context, s *SolanaSource, method string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, retries, err := retry(ctx, s.retry, s.logger, method, fn)
	s.metrics.RecordRPCCall(method, time.Since(start), retries, err)
	return v, err
}

// SubscribeAccountChanges opens a programSubscribe stream.
func (s *SolanaSource) SubscribeAccountChanges(ctx context.Context, filter AccountFilter) (<-chan solana.AccountNotification, error) {
	if s.ws == nil {
		return nil, fmt.Errorf("subscribe: websocket client not configured")
	}
	ch, err := s.ws.SubscribeProgram(ctx, solana.ProgramFilter{
		ProgramID: filter.ProgramID,
		DataSize:  filter.DataSize,
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", filter.ProgramID, err)
	}
	return ch, nil
}

// GetSignatureHistory pages getSignaturesForAddress.
func (s *SolanaSource) GetSignatureHistory(ctx context.Context, address string, q SignatureQuery) ([]solana.SignatureInfo, error) {
	sigs, err := call(ctx, s, "getSignaturesForAddress", func() ([]solana.SignatureInfo, error) {
		return s.rpc.GetSignaturesForAddress(ctx, address, &solana.SignaturesOpts{
			Before: q.Before,
			Until:  q.Until,
			Limit:  q.Limit,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("signature history %s: %w", address, err)
	}
	return sigs, nil
}

// ParseTransactionTransfers fetches a jsonParsed transaction and extracts token transfers.
func (s *SolanaSource) ParseTransactionTransfers(ctx context.Context, signature string) ([]domain.TokenTransfer, error) {
	tx, err := call(ctx, s, "getTransaction", func() (*solana.Transaction, error) {
		tx, err := s.rpc.GetTransaction(ctx, signature)
		if err == nil && tx == nil {
			// Not yet visible at this commitment; worth another attempt.
			return nil, ErrTransactionNotFound
		}
		return tx, err
	})
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", signature, err)
	}

	parsed, err := solana.ParseTokenTransfers(tx)
	if err != nil {
		return nil, err
	}

	var ts time.Time
	if tx.BlockTime > 0 {
		ts = time.Unix(tx.BlockTime, 0).UTC()
	}

	transfers := make([]domain.TokenTransfer, 0, len(parsed))
	for _, p := range parsed {
		transfers = append(transfers, domain.TokenTransfer{
			Signature: signature,
			Slot:      tx.Slot,
			From:      p.From,
			To:        p.To,
			Mint:      p.Mint,
			RawAmount: p.Amount,
			Decimals:  p.Decimals,
			Timestamp: ts,
		})
	}
	return transfers, nil
}

// GetTokenMintDecimals returns cached decimals or reads the mint account.
func (s *SolanaSource) GetTokenMintDecimals(ctx context.Context, mint string) (uint8, error) {
	if d, ok, err := s.decimals.Get(ctx, mint); err != nil {
		s.logger.Warn("decimals cache read failed", zap.String("mint", mint), zap.Error(err))
	} else if ok {
		return d, nil
	}

	info, err := call(ctx, s, "getAccountInfo", func() (*solana.AccountInfo, error) {
		return s.rpc.GetAccountInfo(ctx, mint)
	})
	if err != nil {
		return 0, fmt.Errorf("mint %s: %w", mint, err)
	}
	if info == nil {
		return 0, fmt.Errorf("mint %s: %w", mint, ErrAccountNotFound)
	}

	d, err := solana.DecodeMintDecimals(info.Data)
	if err != nil {
		return 0, fmt.Errorf("mint %s: %w: %v", mint, ErrMalformedAccount, err)
	}

	if err := s.decimals.Set(ctx, mint, d); err != nil {
		s.logger.Warn("decimals cache write failed", zap.String("mint", mint), zap.Error(err))
	}
	return d, nil
}

// GetAccountBalance reads the balance of owner's associated token account for mint.
func (s *SolanaSource) GetAccountBalance(ctx context.Context, owner, mint string) (*TokenBalance, error) {
	ata, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("derive token account: %w", err)
	}

	bal, err := call(ctx, s, "getTokenAccountBalance", func() (*solana.TokenAccountBalance, error) {
		return s.rpc.GetTokenAccountBalance(ctx, ata)
	})
	if err != nil {
		return nil, fmt.Errorf("balance of %s: %w", ata, err)
	}
	if bal == nil {
		return nil, nil
	}

	return &TokenBalance{
		Owner:     owner,
		Mint:      mint,
		Account:   ata,
		RawAmount: bal.Amount,
		Decimals:  bal.Decimals,
	}, nil
}
