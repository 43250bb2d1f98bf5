// Package chain exposes the chain capabilities the ledger depends on,
// with retries and caching applied on top of the Solana transport.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"market-ledger/internal/domain"
	"market-ledger/internal/solana"
)

// Chain-level errors.
var (
	// ErrMalformedAccount is returned for account payloads that do not match the SPL layout.
	ErrMalformedAccount = errors.New("malformed account data")

	// ErrAccountNotFound is returned when a required account (e.g. a mint) does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransactionNotFound is returned when the node does not know a signature yet.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// AccountFilter selects accounts for a change subscription.
type AccountFilter struct {
	ProgramID string
	DataSize  uint64
}

// TokenAccountFilter matches every SPL token account.
func TokenAccountFilter() AccountFilter {
	return AccountFilter{ProgramID: solana.TokenProgramID, DataSize: solana.TokenAccountSize}
}

// SignatureQuery pages signature history newest-first.
type SignatureQuery struct {
	Before string
	Until  string
	Limit  int
}

// TokenBalance is the on-chain balance of an owner's associated token account.
type TokenBalance struct {
	Owner     string
	Mint      string
	Account   string
	RawAmount uint64
	Decimals  uint8
}

// UIAmount scales the raw balance by decimals.
func (b *TokenBalance) UIAmount() decimal.Decimal {
	return domain.ScaleRawAmount(b.RawAmount, b.Decimals)
}

// Source is everything the ledger reads from the chain.
type Source interface {
	// SubscribeAccountChanges streams account notifications until ctx is done.
	SubscribeAccountChanges(ctx context.Context, filter AccountFilter) (<-chan solana.AccountNotification, error)

	// GetSignatureHistory returns signatures touching address, newest first.
	GetSignatureHistory(ctx context.Context, address string, q SignatureQuery) ([]solana.SignatureInfo, error)

	// ParseTransactionTransfers fetches a transaction and extracts its token transfers.
	// Failed transactions yield no transfers.
	ParseTransactionTransfers(ctx context.Context, signature string) ([]domain.TokenTransfer, error)

	// GetTokenMintDecimals returns the decimals of a mint.
	GetTokenMintDecimals(ctx context.Context, mint string) (uint8, error)

	// GetAccountBalance returns owner's balance of mint via its associated token
	// account. Returns nil, nil when the account does not exist.
	GetAccountBalance(ctx context.Context, owner, mint string) (*TokenBalance, error)
}

// TokenAccountUpdate is the decoded header of a token account notification.
type TokenAccountUpdate struct {
	Pubkey    string
	Mint      string
	Owner     string
	RawAmount uint64
	Slot      int64
}

// DecodeTokenAccountUpdate reads mint, owner and amount from the first 72
// bytes of a notification. The rest of the account is ignored.
func DecodeTokenAccountUpdate(n solana.AccountNotification) (TokenAccountUpdate, error) {
	h, err := solana.DecodeTokenAccountHeader(n.Data)
	if err != nil {
		return TokenAccountUpdate{}, fmt.Errorf("%w: %s: %v", ErrMalformedAccount, n.Pubkey, err)
	}
	return TokenAccountUpdate{
		Pubkey:    n.Pubkey,
		Mint:      h.Mint,
		Owner:     h.Owner,
		RawAmount: h.Amount,
		Slot:      n.Slot,
	}, nil
}
