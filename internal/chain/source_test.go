package chain

import (
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-ledger/internal/solana"
)

func TestDecodeTokenAccountUpdate(t *testing.T) {
	mint, err := base58.Decode(testMint)
	require.NoError(t, err)
	owner, err := base58.Decode(testOwner)
	require.NoError(t, err)

	data := make([]byte, solana.TokenAccountSize)
	copy(data[0:32], mint)
	copy(data[32:64], owner)
	binary.LittleEndian.PutUint64(data[64:72], 2_500_000)

	u, err := DecodeTokenAccountUpdate(solana.AccountNotification{Pubkey: "acct", Slot: 9, Data: data})
	require.NoError(t, err)
	assert.Equal(t, TokenAccountUpdate{
		Pubkey:    "acct",
		Mint:      testMint,
		Owner:     testOwner,
		RawAmount: 2_500_000,
		Slot:      9,
	}, u)
}

func TestDecodeTokenAccountUpdate_Short(t *testing.T) {
	_, err := DecodeTokenAccountUpdate(solana.AccountNotification{Pubkey: "acct", Data: make([]byte, 40)})
	require.ErrorIs(t, err, ErrMalformedAccount)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(ErrTransactionNotFound))
	assert.True(t, isRetryable(&solana.RPCError{Code: -32005}))
	assert.False(t, isRetryable(&solana.RPCError{Code: -32602}))
	assert.False(t, isRetryable(ErrAccountNotFound))
}
