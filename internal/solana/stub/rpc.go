// Package stub provides an in-memory solana.RPCClient for tests.
package stub

import (
	"context"
	"sync"

	"reward-center/internal/pda"
	"reward-center/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	Accounts map[pda.Pubkey]*solana.AccountInfo
	Balances map[pda.Pubkey]*solana.TokenAmount
	Slot     uint64

	mu    sync.Mutex
	calls map[string]int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Accounts: make(map[pda.Pubkey]*solana.AccountInfo),
		Balances: make(map[pda.Pubkey]*solana.TokenAmount),
		calls:    make(map[string]int),
	}
}

// GetAccountInfo returns the stored account or solana.ErrAccountNotFound.
func (c *RPCClient) GetAccountInfo(_ context.Context, address pda.Pubkey) (*solana.AccountInfo, error) {
	c.record("getAccountInfo")
	info, ok := c.Accounts[address]
	if !ok {
		return nil, solana.ErrAccountNotFound
	}
	cp := *info
	cp.Data = append([]byte(nil), info.Data...)
	return &cp, nil
}

// GetTokenAccountBalance returns the stored balance or solana.ErrAccountNotFound.
func (c *RPCClient) GetTokenAccountBalance(_ context.Context, address pda.Pubkey) (*solana.TokenAmount, error) {
	c.record("getTokenAccountBalance")
	amount, ok := c.Balances[address]
	if !ok {
		return nil, solana.ErrAccountNotFound
	}
	cp := *amount
	return &cp, nil
}

// GetSlot returns Slot.
func (c *RPCClient) GetSlot(context.Context) (uint64, error) {
	c.record("getSlot")
	return c.Slot, nil
}

// Calls returns how many times method was called.
func (c *RPCClient) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

func (c *RPCClient) record(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[method]++
}

var _ solana.RPCClient = (*RPCClient)(nil)
