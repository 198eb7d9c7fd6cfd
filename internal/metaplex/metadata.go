// Package metaplex derives, decodes and validates Token Metadata accounts.
package metaplex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"reward-center/internal/domain"
	"reward-center/internal/pda"
)

// ProgramID is the Metaplex Token Metadata program.
var ProgramID = pda.MustParsePubkey("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")

const (
	metadataPrefix = "metadata"

	// keyMetadataV1 is the account discriminator of a MetadataV1 account.
	keyMetadataV1 = 4

	maxNameLength   = 32
	maxSymbolLength = 10
	maxURILength    = 200
	maxCreators     = 5
)

// ErrMalformedAccount is returned when account data cannot be decoded as MetadataV1.
var ErrMalformedAccount = errors.New("malformed metadata account")

// MetadataAddress derives the metadata account of mint.
// Seeds: ["metadata", metadata_program_id, mint]
func MetadataAddress(mint pda.Pubkey) (pda.Pubkey, uint8, error) {
	return pda.FindProgramAddress([][]byte{
		[]byte(metadataPrefix),
		ProgramID[:],
		mint[:],
	}, ProgramID)
}

// Decode parses MetadataV1 account data.
// Layout:
// - key: u8 (4 for MetadataV1)
// - updateAuthority: Pubkey
// - mint: Pubkey
// - name, symbol, uri: borsh strings (u32 length + bytes, NUL padded)
// - sellerFeeBasisPoints: u16
// - creators: Option<Vec<(Pubkey, bool, u8)>>
func Decode(addr pda.Pubkey, data []byte) (*domain.Metadata, error) {
	r := &reader{buf: data}

	key := r.u8()
	if r.err == nil && key != keyMetadataV1 {
		return nil, fmt.Errorf("%w: key %d", ErrMalformedAccount, key)
	}

	meta := &domain.Metadata{Address: addr}
	meta.UpdateAuthority = r.pubkey()
	meta.Mint = r.pubkey()
	meta.Name = r.str(maxNameLength)
	meta.Symbol = r.str(maxSymbolLength)
	meta.URI = r.str(maxURILength)
	meta.SellerFeeBasisPoints = r.u16()

	if r.u8() == 1 {
		n := r.u32()
		if n > maxCreators {
			return nil, fmt.Errorf("%w: %d creators", ErrMalformedAccount, n)
		}
		for i := uint32(0); i < n && r.err == nil; i++ {
			c := domain.Creator{Address: r.pubkey()}
			c.Verified = r.u8() == 1
			c.Share = r.u8()
			meta.Creators = append(meta.Creators, c)
		}
	}

	if r.err != nil {
		return nil, r.err
	}
	return meta, nil
}

// reader walks borsh-encoded data. The first failure sticks and later reads
// return zero values.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformedAccount, n, r.off, len(r.buf))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) pubkey() pda.Pubkey {
	var pk pda.Pubkey
	copy(pk[:], r.take(pda.PubkeyLength))
	return pk
}

func (r *reader) str(max int) string {
	n := r.u32()
	if r.err != nil {
		return ""
	}
	// On-chain strings are padded with NUL bytes up to 4 bytes per char.
	if int(n) > max*4 {
		r.err = fmt.Errorf("%w: string length %d", ErrMalformedAccount, n)
		return ""
	}
	return strings.TrimRight(string(r.take(int(n))), "\x00")
}
