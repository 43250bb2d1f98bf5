package solana

import "context"

// RPCClient defines the Solana RPC HTTP methods the ledger needs.
type RPCClient interface {
	// GetTransaction retrieves a jsonParsed transaction by signature.
	// Returns nil, nil when the node does not know the signature.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSignaturesForAddress retrieves signatures for an address, newest first.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetAccountInfo retrieves raw account data. Returns nil, nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetTokenAccountBalance retrieves a token account balance.
	// Returns nil, nil if the account does not exist.
	GetTokenAccountBalance(ctx context.Context, tokenAccount string) (*TokenAccountBalance, error)
}
