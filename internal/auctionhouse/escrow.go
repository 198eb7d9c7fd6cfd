package auctionhouse

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"reward-center/internal/domain"
	"reward-center/internal/pda"
	"reward-center/internal/storage"
	"reward-center/internal/token"
)

// DepositArgs are the accounts and amount of an auctioneer deposit.
type DepositArgs struct {
	Wallet            pda.Pubkey // buyer
	PaymentAccount    pda.Pubkey // buyer treasury-mint account funds are taken from
	TransferAuthority pda.Pubkey // owner or approved delegate of PaymentAccount
	AuctionHouse      pda.Pubkey
	EscrowPayment     pda.Pubkey
	EscrowBump        uint8
	Amount            uint64
}

// Deposit moves Amount from the buyer's payment account into the buyer's
// escrow, creating the escrow on first use.
func (p *Program) Deposit(ctx context.Context, tx storage.Tx, signer pda.Signer, args DepositArgs) error {
	ah, err := p.loadAuctionHouse(ctx, tx, args.AuctionHouse)
	if err != nil {
		return err
	}
	if _, err := p.authorize(ctx, tx, ah, signer, domain.ScopeDeposit); err != nil {
		return err
	}
	if err := p.Verify("escrow_payment_account", args.EscrowPayment, EscrowSeeds(ah.Address, args.Wallet), args.EscrowBump); err != nil {
		return err
	}

	if err := p.fund(ctx, tx, ah, args.Wallet, args.PaymentAccount, args.TransferAuthority, args.EscrowPayment, args.Amount); err != nil {
		return fmt.Errorf("deposit: %w", err)
	}

	p.logger.Debug("escrow deposit",
		zap.Stringer("auction_house", ah.Address),
		zap.Stringer("wallet", args.Wallet),
		zap.Uint64("amount", args.Amount),
	)
	return nil
}

// fund moves amount from the wallet's payment account into its escrow.
func (p *Program) fund(ctx context.Context, tx storage.Tx, ah *domain.AuctionHouse, wallet, payment, authority, escrow pda.Pubkey, amount uint64) error {
	src, err := tx.TokenAccount(ctx, payment)
	if err != nil {
		return fmt.Errorf("payment account %s: %w", payment, err)
	}
	if src.Mint != ah.TreasuryMint {
		return fmt.Errorf("payment account %s holds %s, want %s: %w", payment, src.Mint, ah.TreasuryMint, domain.ErrMintMismatch)
	}
	if src.Owner != wallet {
		return fmt.Errorf("payment account %s not owned by %s: %w", payment, wallet, domain.ErrOwnerMismatch)
	}

	if _, err := token.EnsureAccount(ctx, tx, escrow, ah.Address, ah.TreasuryMint); err != nil {
		return fmt.Errorf("escrow %s: %w", escrow, err)
	}
	return token.Transfer(ctx, tx, payment, escrow, authority, amount)
}

// PublicBuyArgs are the accounts and terms of an auctioneer public bid.
type PublicBuyArgs struct {
	Wallet            pda.Pubkey
	PaymentAccount    pda.Pubkey
	TransferAuthority pda.Pubkey
	TokenAccount      pda.Pubkey // seller account holding the asset
	Metadata          pda.Pubkey
	AuctionHouse      pda.Pubkey
	EscrowPayment     pda.Pubkey
	BuyerTradeState   pda.Pubkey
	TradeStateBump    uint8
	EscrowBump        uint8
	Price             uint64
	TokenSize         uint64
}

// PublicBuy registers a standing bid for the asset in TokenAccount. The
// escrow is topped up from the payment account when it holds less than
// Price. Fails with domain.ErrTradeStateConflict if the bid already exists.
func (p *Program) PublicBuy(ctx context.Context, tx storage.Tx, signer pda.Signer, args PublicBuyArgs) error {
	ah, err := p.loadAuctionHouse(ctx, tx, args.AuctionHouse)
	if err != nil {
		return err
	}
	if _, err := p.authorize(ctx, tx, ah, signer, domain.ScopePublicBuy); err != nil {
		return err
	}

	asset, err := tx.TokenAccount(ctx, args.TokenAccount)
	if err != nil {
		return fmt.Errorf("token account %s: %w", args.TokenAccount, err)
	}
	if _, err := p.metadata.AssertValid(ctx, tx, args.Metadata, asset); err != nil {
		return err
	}

	if err := p.Verify("escrow_payment_account", args.EscrowPayment, EscrowSeeds(ah.Address, args.Wallet), args.EscrowBump); err != nil {
		return err
	}
	seeds := BuyerTradeStateSeeds(args.Wallet, ah.Address, ah.TreasuryMint, asset.Mint, args.Price, args.TokenSize)
	if err := p.Verify("buyer_trade_state", args.BuyerTradeState, seeds, args.TradeStateBump); err != nil {
		return err
	}

	escrowed, err := token.EnsureAccount(ctx, tx, args.EscrowPayment, ah.Address, ah.TreasuryMint)
	if err != nil {
		return fmt.Errorf("escrow %s: %w", args.EscrowPayment, err)
	}
	if escrowed.Amount < args.Price {
		diff := args.Price - escrowed.Amount
		if err := p.fund(ctx, tx, ah, args.Wallet, args.PaymentAccount, args.TransferAuthority, args.EscrowPayment, diff); err != nil {
			return fmt.Errorf("public buy top-up: %w", err)
		}
	}

	ts := &domain.TradeState{
		Address:      args.BuyerTradeState,
		Kind:         domain.TradeStateBuy,
		Wallet:       args.Wallet,
		AuctionHouse: ah.Address,
		TreasuryMint: ah.TreasuryMint,
		TokenMint:    asset.Mint,
		Price:        args.Price,
		TokenSize:    args.TokenSize,
		Bump:         args.TradeStateBump,
	}
	if err := createTradeState(ctx, tx, "buyer_trade_state", ts); err != nil {
		return err
	}

	p.logger.Debug("public bid registered",
		zap.Stringer("trade_state", ts.Address),
		zap.Stringer("wallet", args.Wallet),
		zap.Uint64("price", args.Price),
		zap.Uint64("token_size", args.TokenSize),
	)
	return nil
}
