package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known program ids.
const (
	TokenProgramID           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	AssociatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
)

// PublicKeyLength is the size of an ed25519 public key.
const PublicKeyLength = 32

const (
	maxSeeds      = 16
	maxSeedLength = 32
	pdaMarker     = "ProgramDerivedAddress"
)

// ErrInvalidAddress is returned for strings that are not base58 32-byte keys.
var ErrInvalidAddress = errors.New("invalid address")

// DecodeAddress decodes a base58 address into its 32 raw bytes.
func DecodeAddress(address string) ([]byte, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	raw, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAddress, address, err)
	}
	if len(raw) != PublicKeyLength {
		return nil, fmt.Errorf("%w: %s: decoded length %d", ErrInvalidAddress, address, len(raw))
	}
	return raw, nil
}

// IsValidAddress reports whether address is a well-formed base58 public key.
func IsValidAddress(address string) bool {
	_, err := DecodeAddress(address)
	return err == nil
}

// isOnCurve reports whether the 32 bytes decode to a point on ed25519.
func isOnCurve(point []byte) bool {
	if len(point) != PublicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// createProgramAddress hashes seeds into a candidate program address.
// Returns false when the hash lands on the curve.
func createProgramAddress(seeds [][]byte, programID []byte) ([]byte, bool) {
	h := sha256.New()
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write(programID)
	h.Write([]byte(pdaMarker))
	sum := h.Sum(nil)
	if isOnCurve(sum) {
		return nil, false
	}
	return sum, true
}

// FindProgramAddress derives a Program Derived Address, searching bumps from 255 down.
func FindProgramAddress(seeds [][]byte, programID string) (string, uint8, error) {
	if len(seeds) >= maxSeeds {
		return "", 0, fmt.Errorf("too many seeds: %d", len(seeds))
	}
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return "", 0, fmt.Errorf("seed exceeds %d bytes", maxSeedLength)
		}
	}
	program, err := DecodeAddress(programID)
	if err != nil {
		return "", 0, fmt.Errorf("program id: %w", err)
	}

	for bump := 255; bump >= 0; bump-- {
		withBump := append(append([][]byte{}, seeds...), []byte{byte(bump)})
		if addr, ok := createProgramAddress(withBump, program); ok {
			return base58.Encode(addr), uint8(bump), nil
		}
	}
	return "", 0, errors.New("unable to find a viable program address bump")
}

// FindAssociatedTokenAddress returns the associated token account of owner for mint.
func FindAssociatedTokenAddress(owner, mint string) (string, error) {
	ownerKey, err := DecodeAddress(owner)
	if err != nil {
		return "", fmt.Errorf("owner: %w", err)
	}
	mintKey, err := DecodeAddress(mint)
	if err != nil {
		return "", fmt.Errorf("mint: %w", err)
	}
	tokenProgram, err := DecodeAddress(TokenProgramID)
	if err != nil {
		return "", err
	}

	addr, _, err := FindProgramAddress([][]byte{ownerKey, tokenProgram, mintKey}, AssociatedTokenProgramID)
	if err != nil {
		return "", fmt.Errorf("derive associated token address: %w", err)
	}
	return addr, nil
}
