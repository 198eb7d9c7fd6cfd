package domain

import (
	"errors"

	"reward-center/internal/pda"
)

// Settlement failure kinds. Every failure returned by the settlement engine
// wraps exactly one of these.
var (
	// ErrAddressMismatch is returned when a supplied account does not match its derivation.
	ErrAddressMismatch = pda.ErrAddressMismatch

	// ErrMintMismatch is returned when a token account holds a different mint than configured.
	ErrMintMismatch = errors.New("mint mismatch")

	// ErrOwnerMismatch is returned when a token account is not owned by the expected wallet.
	ErrOwnerMismatch = errors.New("owner mismatch")

	// ErrInvalidMetadata is returned when asset metadata fails the validity assertion.
	ErrInvalidMetadata = errors.New("invalid metadata")

	// ErrInsufficientFunds is returned when a source balance cannot cover a transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrTradeStateConflict is returned when a trade state (or the listing that
	// owns it) exists where it must not, or is missing where it must exist.
	ErrTradeStateConflict = errors.New("trade state conflict")

	// ErrUnauthorized is returned when a signer lacks the authority or scope for an operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidRewardRules is returned when reward rules cannot produce a payout.
	ErrInvalidRewardRules = errors.New("invalid reward rules")
)
