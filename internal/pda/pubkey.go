// Package pda derives and verifies program-derived addresses.
package pda

import (
	"database/sql/driver"
	"fmt"

	"github.com/mr-tron/base58"
)

// PubkeyLength is the size of an account address in bytes.
const PubkeyLength = 32

// Pubkey is a 32-byte account address.
type Pubkey [PubkeyLength]byte

// Zero is the all-zero address.
var Zero Pubkey

// ParsePubkey decodes a base58 address.
func ParsePubkey(s string) (Pubkey, error) {
	var pk Pubkey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("decode pubkey %q: %w", s, err)
	}
	if len(raw) != PubkeyLength {
		return pk, fmt.Errorf("decode pubkey %q: want %d bytes, got %d", s, PubkeyLength, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustParsePubkey is ParsePubkey for constants. Panics on malformed input.
func MustParsePubkey(s string) Pubkey {
	pk, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 form.
func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

// Bytes returns a copy of the address bytes, usable as a seed.
func (p Pubkey) Bytes() []byte {
	b := make([]byte, PubkeyLength)
	copy(b, p[:])
	return b
}

// IsZero reports whether p is the zero address.
func (p Pubkey) IsZero() bool {
	return p == Zero
}

// MarshalText implements encoding.TextMarshaler.
func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pubkey) UnmarshalText(text []byte) error {
	pk, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*p = pk
	return nil
}

// Value implements driver.Valuer. Addresses are stored as base58 text.
func (p Pubkey) Value() (driver.Value, error) {
	return p.String(), nil
}

// Scan implements sql.Scanner.
func (p *Pubkey) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return p.UnmarshalText([]byte(v))
	case []byte:
		return p.UnmarshalText(v)
	case nil:
		*p = Zero
		return nil
	default:
		return fmt.Errorf("scan pubkey: unsupported type %T", src)
	}
}
