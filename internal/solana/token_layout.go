package solana

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// SPL token account and mint layouts.
// Token account: mint(32) | owner(32) | amount(8) | delegate... (165 bytes total)
// Mint: mint_authority option(4+32) | supply(8) | decimals(1) | ... (82 bytes total)
const (
	TokenAccountSize = 165
	MintAccountSize  = 82

	// TokenAccountHeaderSize covers mint, owner and amount.
	TokenAccountHeaderSize = 72

	mintDecimalsOffset = 44
)

// ErrShortAccountData is returned when account bytes are smaller than the layout requires.
var ErrShortAccountData = errors.New("account data too short")

// TokenAccountHeader is the leading part of an SPL token account.
type TokenAccountHeader struct {
	Mint   string
	Owner  string
	Amount uint64 // raw, unscaled
}

// DecodeTokenAccountHeader decodes the first 72 bytes of an SPL token account.
// Nothing beyond the header is read.
func DecodeTokenAccountHeader(data []byte) (*TokenAccountHeader, error) {
	if len(data) < TokenAccountHeaderSize {
		return nil, fmt.Errorf("%w: token account %d bytes", ErrShortAccountData, len(data))
	}
	return &TokenAccountHeader{
		Mint:   base58.Encode(data[0:32]),
		Owner:  base58.Encode(data[32:64]),
		Amount: binary.LittleEndian.Uint64(data[64:72]),
	}, nil
}

// DecodeMintDecimals reads the decimals byte of an SPL mint account.
func DecodeMintDecimals(data []byte) (uint8, error) {
	if len(data) <= mintDecimalsOffset {
		return 0, fmt.Errorf("%w: mint %d bytes", ErrShortAccountData, len(data))
	}
	return data[mintDecimalsOffset], nil
}
