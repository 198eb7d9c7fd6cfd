package auctionhouse

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"reward-center/internal/domain"
	"reward-center/internal/pda"
	"reward-center/internal/storage"
	"reward-center/internal/token"
)

// SellArgs are the accounts of an auctioneer sell order.
type SellArgs struct {
	Wallet              pda.Pubkey // seller
	TokenAccount        pda.Pubkey
	Metadata            pda.Pubkey
	AuctionHouse        pda.Pubkey
	SellerTradeState    pda.Pubkey
	FreeTradeState      pda.Pubkey
	ProgramAsSigner     pda.Pubkey
	TradeStateBump      uint8
	FreeTradeStateBump  uint8
	ProgramAsSignerBump uint8
	TokenSize           uint64
}

// Sell registers a seller trade state at SentinelPrice and approves the
// program-as-signer to move TokenSize of the asset at execution.
func (p *Program) Sell(ctx context.Context, tx storage.Tx, signer pda.Signer, args SellArgs) (*domain.TradeState, error) {
	ah, err := p.loadAuctionHouse(ctx, tx, args.AuctionHouse)
	if err != nil {
		return nil, err
	}
	if _, err := p.authorize(ctx, tx, ah, signer, domain.ScopeSell); err != nil {
		return nil, err
	}

	asset, err := tx.TokenAccount(ctx, args.TokenAccount)
	if err != nil {
		return nil, fmt.Errorf("token account %s: %w", args.TokenAccount, err)
	}
	if asset.Owner != args.Wallet {
		return nil, fmt.Errorf("token account %s not owned by %s: %w", args.TokenAccount, args.Wallet, domain.ErrOwnerMismatch)
	}
	if asset.Amount < args.TokenSize || args.TokenSize == 0 {
		return nil, fmt.Errorf("token account %s holds %d, listing %d: %w", args.TokenAccount, asset.Amount, args.TokenSize, domain.ErrInsufficientFunds)
	}
	if _, err := p.metadata.AssertValid(ctx, tx, args.Metadata, asset); err != nil {
		return nil, err
	}

	checks := []struct {
		name  string
		got   pda.Pubkey
		seeds [][]byte
		bump  uint8
	}{
		{"seller_trade_state", args.SellerTradeState, SellerTradeStateSeeds(args.Wallet, ah.Address, args.TokenAccount, ah.TreasuryMint, asset.Mint, SentinelPrice, args.TokenSize), args.TradeStateBump},
		{"free_trade_state", args.FreeTradeState, SellerTradeStateSeeds(args.Wallet, ah.Address, args.TokenAccount, ah.TreasuryMint, asset.Mint, FreePrice, args.TokenSize), args.FreeTradeStateBump},
		{"program_as_signer", args.ProgramAsSigner, ProgramAsSignerSeeds(), args.ProgramAsSignerBump},
	}
	for _, c := range checks {
		if err := p.Verify(c.name, c.got, c.seeds, c.bump); err != nil {
			return nil, err
		}
	}

	ts := &domain.TradeState{
		Address:      args.SellerTradeState,
		Kind:         domain.TradeStateSell,
		Wallet:       args.Wallet,
		AuctionHouse: ah.Address,
		TokenAccount: args.TokenAccount,
		TreasuryMint: ah.TreasuryMint,
		TokenMint:    asset.Mint,
		Price:        SentinelPrice,
		TokenSize:    args.TokenSize,
		Bump:         args.TradeStateBump,
	}
	if err := createTradeState(ctx, tx, "seller_trade_state", ts); err != nil {
		return nil, err
	}
	if err := token.Approve(ctx, tx, args.TokenAccount, args.Wallet, args.ProgramAsSigner, args.TokenSize); err != nil {
		return nil, fmt.Errorf("approve program as signer: %w", err)
	}

	p.logger.Debug("sell order registered",
		zap.Stringer("trade_state", ts.Address),
		zap.Stringer("wallet", args.Wallet),
		zap.Uint64("token_size", args.TokenSize),
	)
	return ts, nil
}

// CancelArgs identify the trade state to close.
type CancelArgs struct {
	Wallet          pda.Pubkey
	TokenAccount    pda.Pubkey
	AuctionHouse    pda.Pubkey
	TradeState      pda.Pubkey
	ProgramAsSigner pda.Pubkey
}

// Cancel closes one of the wallet's trade states. For a seller state the
// program-as-signer allowance on the token account is revoked.
func (p *Program) Cancel(ctx context.Context, tx storage.Tx, signer pda.Signer, args CancelArgs) error {
	ah, err := p.loadAuctionHouse(ctx, tx, args.AuctionHouse)
	if err != nil {
		return err
	}
	if _, err := p.authorize(ctx, tx, ah, signer, domain.ScopeCancel); err != nil {
		return err
	}

	ts, err := loadTradeState(ctx, tx, "trade_state", args.TradeState)
	if err != nil {
		return err
	}
	if ts.Wallet != args.Wallet || ts.AuctionHouse != ah.Address {
		return fmt.Errorf("trade state %s belongs to %s: %w", ts.Address, ts.Wallet, domain.ErrTradeStateConflict)
	}

	var seeds [][]byte
	if ts.Kind == domain.TradeStateBuy {
		seeds = BuyerTradeStateSeeds(ts.Wallet, ah.Address, ts.TreasuryMint, ts.TokenMint, ts.Price, ts.TokenSize)
	} else {
		if ts.TokenAccount != args.TokenAccount {
			return fmt.Errorf("trade state %s is for token account %s: %w", ts.Address, ts.TokenAccount, domain.ErrTradeStateConflict)
		}
		seeds = SellerTradeStateSeeds(ts.Wallet, ah.Address, ts.TokenAccount, ts.TreasuryMint, ts.TokenMint, ts.Price, ts.TokenSize)
	}
	if err := p.Verify("trade_state", args.TradeState, seeds, ts.Bump); err != nil {
		return err
	}

	if err := tx.DeleteTradeState(ctx, ts.Address); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("trade state %s: %w", ts.Address, domain.ErrTradeStateConflict)
		}
		return err
	}
	if ts.Kind != domain.TradeStateBuy {
		if err := p.revokeProgramDelegate(ctx, tx, args.TokenAccount, args.ProgramAsSigner); err != nil {
			return err
		}
	}

	p.logger.Debug("trade state cancelled",
		zap.Stringer("trade_state", ts.Address),
		zap.Stringer("kind", ts.Kind),
	)
	return nil
}
