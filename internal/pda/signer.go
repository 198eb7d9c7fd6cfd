package pda

import (
	"fmt"
)

// SignerSeeds are the seeds a program uses to sign for one of its derived
// addresses.
type SignerSeeds struct {
	Program Pubkey
	Seeds   [][]byte
	Bump    uint8
}

// Signer is a capability proving that the holder derived Key from seeds owned
// by Program. It can only be obtained through SignerSeeds.Sign.
type Signer struct {
	key     Pubkey
	program Pubkey
}

// Sign re-derives the address and returns the capability for it.
func (s SignerSeeds) Sign() (Signer, error) {
	seeds := append(append([][]byte{}, s.Seeds...), []byte{s.Bump})
	key, err := CreateProgramAddress(seeds, s.Program)
	if err != nil {
		return Signer{}, fmt.Errorf("sign with program %s: %w", s.Program, err)
	}
	return Signer{key: key, program: s.Program}, nil
}

// Key is the address the capability signs for.
func (s Signer) Key() Pubkey { return s.key }

// Program is the program that owns the signing seeds.
func (s Signer) Program() Pubkey { return s.program }

// Valid reports whether the capability was produced by Sign.
func (s Signer) Valid() bool { return !s.key.IsZero() && !s.program.IsZero() }
