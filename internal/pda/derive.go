package pda

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

// Derivation limits.
const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

const pdaMarker = "ProgramDerivedAddress"

var (
	// ErrAddressMismatch is returned when a supplied account does not equal
	// its deterministic derivation.
	ErrAddressMismatch = errors.New("address mismatch")

	// ErrMaxSeedLength is returned when a seed is too long or there are too many seeds.
	ErrMaxSeedLength = errors.New("max seed length exceeded")

	// ErrInvalidSeeds is returned when the seeds hash to a point on the ed25519 curve.
	ErrInvalidSeeds = errors.New("seeds produce an on-curve address")

	// ErrNoViableBump is returned when no bump in [1, 255] yields an off-curve address.
	ErrNoViableBump = errors.New("unable to find a viable bump seed")
)

// Well-known program addresses.
var (
	TokenProgramID           = MustParsePubkey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgramID = MustParsePubkey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

// CreateProgramAddress hashes seeds || programID || "ProgramDerivedAddress".
// Callers that own a bump pass it as the final one-byte seed.
func CreateProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return Zero, ErrMaxSeedLength
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Zero, ErrMaxSeedLength
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var out Pubkey
	copy(out[:], h.Sum(nil))

	if isOnCurve(out[:]) {
		return Zero, ErrInvalidSeeds
	}
	return out, nil
}

// FindProgramAddress searches bumps from 255 down to 1 and returns the first
// off-curve address together with its bump.
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := 255; bump > 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if errors.Is(err, ErrMaxSeedLength) {
			return Zero, 0, err
		}
	}
	return Zero, 0, ErrNoViableBump
}

// Verify re-derives the address for seeds and the claimed bump and compares
// it with got. name identifies the account in the returned error.
func Verify(name string, got Pubkey, seeds [][]byte, bump uint8, programID Pubkey) error {
	want, err := CreateProgramAddress(append(append([][]byte{}, seeds...), []byte{bump}), programID)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", name, ErrAddressMismatch, err)
	}
	if want != got {
		return fmt.Errorf("%s: %w: got %s, want %s", name, ErrAddressMismatch, got, want)
	}
	return nil
}

// AssociatedTokenAddress returns the canonical token account for (owner, mint).
func AssociatedTokenAddress(owner, mint Pubkey) (Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{owner[:], TokenProgramID[:], mint[:]}, AssociatedTokenProgramID)
}

// U64Seed encodes v as an 8-byte little-endian seed.
func U64Seed(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func isOnCurve(point []byte) bool {
	if len(point) != PubkeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
