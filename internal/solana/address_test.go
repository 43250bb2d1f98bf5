package solana

import (
	"bytes"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOwner = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testMint  = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func TestDecodeAddress(t *testing.T) {
	raw, err := DecodeAddress(TokenProgramID)
	require.NoError(t, err)
	assert.Len(t, raw, PublicKeyLength)

	tests := []struct {
		name string
		addr string
	}{
		{"empty", ""},
		{"not base58", "0OIl"},
		{"too short", base58.Encode([]byte{1, 2, 3})},
		{"too long", base58.Encode(bytes.Repeat([]byte{1}, 33))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeAddress(tt.addr)
			assert.ErrorIs(t, err, ErrInvalidAddress)
			assert.False(t, IsValidAddress(tt.addr))
		})
	}
}

func TestFindProgramAddress_OffCurveAndDeterministic(t *testing.T) {
	seeds := [][]byte{[]byte("treasury")}

	addr1, bump1, err := FindProgramAddress(seeds, AssociatedTokenProgramID)
	require.NoError(t, err)
	addr2, bump2, err := FindProgramAddress(seeds, AssociatedTokenProgramID)
	require.NoError(t, err)

	assert.Equal(t, addr1, addr2)
	assert.Equal(t, bump1, bump2)

	raw, err := DecodeAddress(addr1)
	require.NoError(t, err)
	assert.False(t, isOnCurve(raw), "PDA must be off curve")

	program, err := DecodeAddress(AssociatedTokenProgramID)
	require.NoError(t, err)
	again, ok := createProgramAddress(append(seeds, []byte{bump1}), program)
	require.True(t, ok)
	assert.Equal(t, raw, again)
}

func TestFindProgramAddress_SeedLimits(t *testing.T) {
	_, _, err := FindProgramAddress([][]byte{bytes.Repeat([]byte{1}, 33)}, TokenProgramID)
	assert.Error(t, err)

	tooMany := make([][]byte, maxSeeds)
	for i := range tooMany {
		tooMany[i] = []byte{byte(i)}
	}
	_, _, err = FindProgramAddress(tooMany, TokenProgramID)
	assert.Error(t, err)

	_, _, err = FindProgramAddress(nil, "not-a-key")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestFindAssociatedTokenAddress(t *testing.T) {
	ata, err := FindAssociatedTokenAddress(testOwner, testMint)
	require.NoError(t, err)
	assert.True(t, IsValidAddress(ata))
	assert.NotEqual(t, testOwner, ata)

	other, err := FindAssociatedTokenAddress(TokenProgramID, testMint)
	require.NoError(t, err)
	assert.NotEqual(t, ata, other, "different owners derive different accounts")

	_, err = FindAssociatedTokenAddress("bad", testMint)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = FindAssociatedTokenAddress(testOwner, "bad")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestIsOnCurve(t *testing.T) {
	// Regular wallet keys are ed25519 points.
	raw, err := DecodeAddress(testOwner)
	require.NoError(t, err)
	assert.True(t, isOnCurve(raw))
	assert.False(t, isOnCurve([]byte{1, 2}))
}
