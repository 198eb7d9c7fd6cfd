package pda

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wallet(label string) ed25519.PrivateKey {
	seed := sha256.Sum256([]byte(label))
	return ed25519.NewKeyFromSeed(seed[:])
}

func TestSignature_Verify(t *testing.T) {
	alice, bob := wallet("alice"), wallet("bob")
	msg := []byte("buy listing")
	sig := Sign(alice, msg)

	assert.True(t, sig.Verify(PubkeyOf(alice), msg))
	assert.False(t, sig.Verify(PubkeyOf(bob), msg))
	assert.False(t, sig.Verify(PubkeyOf(alice), []byte("buy listing twice")))
	assert.False(t, Signature{}.Verify(PubkeyOf(alice), msg))

	// Off-curve addresses cannot sign.
	addr, _, err := FindProgramAddress([][]byte{[]byte("escrow")}, testProgram)
	require.NoError(t, err)
	assert.False(t, sig.Verify(addr, msg))
}

func TestSignature_Text(t *testing.T) {
	sig := Sign(wallet("alice"), []byte("m"))

	raw, err := json.Marshal(struct {
		Sig Signature `json:"sig"`
	}{sig})
	require.NoError(t, err)

	var back struct {
		Sig Signature `json:"sig"`
	}
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, sig, back.Sig)

	require.NoError(t, json.Unmarshal([]byte(`{"sig":""}`), &back))
	assert.True(t, back.Sig.IsZero())

	_, err = ParseSignature(PubkeyOf(wallet("alice")).String())
	assert.Error(t, err)
}
