package stub

import (
	"context"
	"errors"
	"sync"

	"market-ledger/internal/solana"
)

// ErrNotFound is returned by GetTransaction for unknown signatures when Strict is set.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient over in-memory fixtures.
type RPCClient struct {
	mu sync.Mutex

	Transactions map[string]*solana.Transaction
	// Signatures holds per-address history, newest first.
	Signatures map[string][]solana.SignatureInfo
	Accounts   map[string]*solana.AccountInfo
	Balances   map[string]*solana.TokenAccountBalance

	// Errors injects a failure per method name, consumed once per call while set.
	Errors map[string]error
	// Calls counts invocations per method name.
	Calls map[string]int
	// Strict makes GetTransaction fail for unknown signatures instead of returning nil.
	Strict bool
}

var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Signatures:   make(map[string][]solana.SignatureInfo),
		Accounts:     make(map[string]*solana.AccountInfo),
		Balances:     make(map[string]*solana.TokenAccountBalance),
		Errors:       make(map[string]error),
		Calls:        make(map[string]int),
	}
}

func (c *RPCClient) enter(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls[method]++
	return c.Errors[method]
}

// CallCount returns how many times method was invoked.
func (c *RPCClient) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls[method]
}

// SetError sets or clears (err == nil) the injected error for method.
func (c *RPCClient) SetError(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.Errors, method)
		return
	}
	c.Errors[method] = err
}

// GetTransaction returns the stored transaction.
func (c *RPCClient) GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error) {
	if err := c.enter("getTransaction"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.Transactions[signature]
	if !ok && c.Strict {
		return nil, ErrNotFound
	}
	return tx, nil
}

// GetSignaturesForAddress pages the stored history the way a node does:
// entries strictly older than Before, stopping before Until, at most Limit.
func (c *RPCClient) GetSignaturesForAddress(ctx context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	if err := c.enter("getSignaturesForAddress"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	sigs := c.Signatures[address]
	if opts == nil {
		return append([]solana.SignatureInfo(nil), sigs...), nil
	}

	start := 0
	if opts.Before != "" {
		start = len(sigs)
		for i, s := range sigs {
			if s.Signature == opts.Before {
				start = i + 1
				break
			}
		}
	}

	var out []solana.SignatureInfo
	for _, s := range sigs[start:] {
		if opts.Until != "" && s.Signature == opts.Until {
			break
		}
		out = append(out, s)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// GetAccountInfo returns the stored account, nil when absent.
func (c *RPCClient) GetAccountInfo(ctx context.Context, pubkey string) (*solana.AccountInfo, error) {
	if err := c.enter("getAccountInfo"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Accounts[pubkey], nil
}

// GetTokenAccountBalance returns the stored balance, nil when absent.
func (c *RPCClient) GetTokenAccountBalance(ctx context.Context, tokenAccount string) (*solana.TokenAccountBalance, error) {
	if err := c.enter("getTokenAccountBalance"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Balances[tokenAccount], nil
}

// AddTransaction stores a transaction.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// AddSignatures sets the history of an address (newest first).
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}

// SetAccount stores raw account data.
func (c *RPCClient) SetAccount(pubkey string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = info
}

// SetBalance stores a token account balance.
func (c *RPCClient) SetBalance(tokenAccount string, bal *solana.TokenAccountBalance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Balances[tokenAccount] = bal
}
