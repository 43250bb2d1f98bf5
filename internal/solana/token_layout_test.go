package solana

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenAccountBytes(t *testing.T, mint, owner string, amount uint64) []byte {
	t.Helper()
	mintRaw, err := DecodeAddress(mint)
	require.NoError(t, err)
	ownerRaw, err := DecodeAddress(owner)
	require.NoError(t, err)

	data := make([]byte, TokenAccountSize)
	copy(data[0:32], mintRaw)
	copy(data[32:64], ownerRaw)
	binary.LittleEndian.PutUint64(data[64:72], amount)
	// Fill the tail to prove it is ignored.
	for i := TokenAccountHeaderSize; i < len(data); i++ {
		data[i] = 0xff
	}
	return data
}

func TestDecodeTokenAccountHeader(t *testing.T) {
	data := tokenAccountBytes(t, testMint, testOwner, 1_500_000)

	h, err := DecodeTokenAccountHeader(data)
	require.NoError(t, err)
	assert.Equal(t, testMint, h.Mint)
	assert.Equal(t, testOwner, h.Owner)
	assert.Equal(t, uint64(1_500_000), h.Amount)

	h, err = DecodeTokenAccountHeader(data[:TokenAccountHeaderSize])
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000), h.Amount)
}

func TestDecodeTokenAccountHeader_Short(t *testing.T) {
	_, err := DecodeTokenAccountHeader(make([]byte, TokenAccountHeaderSize-1))
	assert.ErrorIs(t, err, ErrShortAccountData)
}

func TestDecodeMintDecimals(t *testing.T) {
	data := make([]byte, MintAccountSize)
	data[mintDecimalsOffset] = 6

	d, err := DecodeMintDecimals(data)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), d)

	_, err = DecodeMintDecimals(data[:mintDecimalsOffset])
	assert.ErrorIs(t, err, ErrShortAccountData)
}
