package pda

import (
	"crypto/ed25519"
	"fmt"

	"github.com/hdevalence/ed25519consensus"
	"github.com/mr-tron/base58"
)

// SignatureLength is the size of a wallet signature in bytes.
const SignatureLength = ed25519.SignatureSize

// Signature is an ed25519 signature made by a wallet.
type Signature [SignatureLength]byte

// Sign signs msg with key.
func Sign(key ed25519.PrivateKey, msg []byte) Signature {
	var s Signature
	copy(s[:], ed25519.Sign(key, msg))
	return s
}

// PubkeyOf returns the wallet address of key.
func PubkeyOf(key ed25519.PrivateKey) Pubkey {
	var pk Pubkey
	copy(pk[:], key.Public().(ed25519.PublicKey))
	return pk
}

// ParseSignature decodes a base58 signature.
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	raw, err := base58.Decode(s)
	if err != nil {
		return sig, fmt.Errorf("decode signature: %w", err)
	}
	if len(raw) != SignatureLength {
		return sig, fmt.Errorf("decode signature: want %d bytes, got %d", SignatureLength, len(raw))
	}
	copy(sig[:], raw)
	return sig, nil
}

// Verify reports whether s is the signature of msg by wallet.
func (s Signature) Verify(wallet Pubkey, msg []byte) bool {
	return ed25519consensus.Verify(ed25519.PublicKey(wallet[:]), msg, s[:])
}

// IsZero reports whether s is unset.
func (s Signature) IsZero() bool {
	return s == Signature{}
}

// String returns the base58 form.
func (s Signature) String() string {
	return base58.Encode(s[:])
}

// MarshalText implements encoding.TextMarshaler. An unset signature
// encodes as the empty string.
func (s Signature) MarshalText() ([]byte, error) {
	if s.IsZero() {
		return []byte{}, nil
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Signature) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*s = Signature{}
		return nil
	}
	sig, err := ParseSignature(string(text))
	if err != nil {
		return err
	}
	*s = sig
	return nil
}
