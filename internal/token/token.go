// Package token implements balance-holding account operations over a ledger
// transaction: transfers, delegate approval and account creation.
package token

import (
	"context"
	"errors"
	"fmt"

	"reward-center/internal/domain"
	"reward-center/internal/pda"
	"reward-center/internal/storage"
)

// Transfer moves amount of the source mint from src to dst.
// authority must be the source owner, or its delegate with a sufficient
// delegated amount, which the transfer consumes. A zero amount is a no-op.
func Transfer(ctx context.Context, tx storage.TokenAccountTx, src, dst, authority pda.Pubkey, amount uint64) error {
	if amount == 0 {
		return nil
	}

	from, err := load(ctx, tx, "source", src)
	if err != nil {
		return err
	}
	to, err := load(ctx, tx, "destination", dst)
	if err != nil {
		return err
	}
	if from.Mint != to.Mint {
		return fmt.Errorf("transfer %s -> %s: %w", src, dst, domain.ErrMintMismatch)
	}

	switch {
	case authority == from.Owner:
	case authority == from.Delegate && !from.Delegate.IsZero():
		if from.DelegatedAmount < amount {
			return fmt.Errorf("transfer from %s: delegate allowance %d below %d: %w",
				src, from.DelegatedAmount, amount, domain.ErrInsufficientFunds)
		}
		from.DelegatedAmount -= amount
		if from.DelegatedAmount == 0 {
			from.Delegate = pda.Zero
		}
	default:
		return fmt.Errorf("transfer from %s: %s is neither owner nor delegate: %w", src, authority, domain.ErrUnauthorized)
	}

	if from.Amount < amount {
		return fmt.Errorf("transfer from %s: balance %d below %d: %w", src, from.Amount, amount, domain.ErrInsufficientFunds)
	}
	if src == dst {
		return tx.UpdateTokenAccount(ctx, from)
	}
	if to.Amount > ^uint64(0)-amount {
		return fmt.Errorf("transfer to %s: balance overflow", dst)
	}

	from.Amount -= amount
	to.Amount += amount

	if err := tx.UpdateTokenAccount(ctx, from); err != nil {
		return fmt.Errorf("debit %s: %w", src, err)
	}
	if err := tx.UpdateTokenAccount(ctx, to); err != nil {
		return fmt.Errorf("credit %s: %w", dst, err)
	}
	return nil
}

// Approve lets delegate move up to amount out of account. Only the owner may approve.
func Approve(ctx context.Context, tx storage.TokenAccountTx, account, owner, delegate pda.Pubkey, amount uint64) error {
	acct, err := load(ctx, tx, "account", account)
	if err != nil {
		return err
	}
	if acct.Owner != owner {
		return fmt.Errorf("approve on %s: %w", account, domain.ErrOwnerMismatch)
	}
	acct.Delegate = delegate
	acct.DelegatedAmount = amount
	return tx.UpdateTokenAccount(ctx, acct)
}

// Revoke clears the delegate of account. authority must be the owner or the
// current delegate.
func Revoke(ctx context.Context, tx storage.TokenAccountTx, account, authority pda.Pubkey) error {
	acct, err := load(ctx, tx, "account", account)
	if err != nil {
		return err
	}
	if authority != acct.Owner && (acct.Delegate.IsZero() || authority != acct.Delegate) {
		return fmt.Errorf("revoke on %s: %w", account, domain.ErrUnauthorized)
	}
	acct.Delegate = pda.Zero
	acct.DelegatedAmount = 0
	return tx.UpdateTokenAccount(ctx, acct)
}

// EnsureAccount returns the account at addr, creating an empty one for
// (owner, mint) when it does not exist. An existing account must match both.
func EnsureAccount(ctx context.Context, tx storage.TokenAccountTx, addr, owner, mint pda.Pubkey) (*domain.TokenAccount, error) {
	acct, err := tx.TokenAccount(ctx, addr)
	switch {
	case err == nil:
		if acct.Mint != mint {
			return nil, fmt.Errorf("account %s: %w", addr, domain.ErrMintMismatch)
		}
		if acct.Owner != owner {
			return nil, fmt.Errorf("account %s: %w", addr, domain.ErrOwnerMismatch)
		}
		return acct, nil
	case errors.Is(err, storage.ErrNotFound):
		acct = &domain.TokenAccount{Address: addr, Mint: mint, Owner: owner}
		if err := tx.CreateTokenAccount(ctx, acct); err != nil {
			return nil, fmt.Errorf("create account %s: %w", addr, err)
		}
		return acct, nil
	default:
		return nil, err
	}
}

// EnsureAssociatedAccount is EnsureAccount at the associated token address of (owner, mint).
func EnsureAssociatedAccount(ctx context.Context, tx storage.TokenAccountTx, owner, mint pda.Pubkey) (*domain.TokenAccount, error) {
	addr, _, err := pda.AssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("derive associated account: %w", err)
	}
	return EnsureAccount(ctx, tx, addr, owner, mint)
}

// Balance returns the amount held by addr.
func Balance(ctx context.Context, tx storage.TokenAccountTx, addr pda.Pubkey) (uint64, error) {
	acct, err := load(ctx, tx, "account", addr)
	if err != nil {
		return 0, err
	}
	return acct.Amount, nil
}

func load(ctx context.Context, tx storage.TokenAccountTx, role string, addr pda.Pubkey) (*domain.TokenAccount, error) {
	acct, err := tx.TokenAccount(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("%s token account %s: %w", role, addr, err)
	}
	return acct, nil
}
