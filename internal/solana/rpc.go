package solana

import (
	"context"
	"errors"

	"reward-center/internal/pda"
)

// ErrAccountNotFound is returned when the queried account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// RPCClient defines the Solana RPC HTTP interface used for account lookups.
type RPCClient interface {
	// GetAccountInfo retrieves raw account data. Returns ErrAccountNotFound
	// when the account does not exist.
	GetAccountInfo(ctx context.Context, address pda.Pubkey) (*AccountInfo, error)

	// GetTokenAccountBalance retrieves the balance of a token account.
	GetTokenAccountBalance(ctx context.Context, address pda.Pubkey) (*TokenAmount, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (uint64, error)
}

// AccountInfo is the decoded state of an on-chain account.
type AccountInfo struct {
	Lamports   uint64
	Owner      pda.Pubkey
	Data       []byte
	Executable bool
	RentEpoch  uint64
}

// TokenAmount is a token account balance in base units.
type TokenAmount struct {
	Amount         uint64
	Decimals       uint8
	UIAmountString string
}
