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

// ExecuteSaleArgs are the accounts and terms of an auctioneer sale.
type ExecuteSaleArgs struct {
	Buyer                pda.Pubkey
	Seller               pda.Pubkey
	TokenAccount         pda.Pubkey
	TokenMint            pda.Pubkey
	Metadata             pda.Pubkey
	TreasuryMint         pda.Pubkey
	AuctionHouse         pda.Pubkey
	FeeAccount           pda.Pubkey
	Treasury             pda.Pubkey
	EscrowPayment        pda.Pubkey
	SellerPaymentReceipt pda.Pubkey // seller associated account for the treasury mint
	BuyerReceiptAccount  pda.Pubkey // buyer associated account for the token mint
	BuyerTradeState      pda.Pubkey
	SellerTradeState     pda.Pubkey
	FreeTradeState       pda.Pubkey
	ProgramAsSigner      pda.Pubkey

	EscrowBump          uint8
	FreeTradeStateBump  uint8
	ProgramAsSignerBump uint8

	Price     uint64
	TokenSize uint64

	Remaining []RemainingAccount
}

// SaleResult reports where the buyer's escrowed price went.
type SaleResult struct {
	Royalties      uint64
	MarketplaceFee uint64
	SellerProceeds uint64
}

// ExecuteSale matches the buyer's bid against the seller's ask. It pays
// creator royalties, the marketplace fee and the seller out of escrow,
// moves the asset to the buyer and closes the buyer, seller and free trade
// states. Every account is re-derived before anything moves.
func (p *Program) ExecuteSale(ctx context.Context, tx storage.Tx, signer pda.Signer, args ExecuteSaleArgs) (*SaleResult, error) {
	ah, err := p.loadAuctionHouse(ctx, tx, args.AuctionHouse)
	if err != nil {
		return nil, err
	}
	if _, err := p.authorize(ctx, tx, ah, signer, domain.ScopeExecuteSale); err != nil {
		return nil, err
	}

	if err := p.verifySaleAccounts(ah, args); err != nil {
		return nil, err
	}
	buyerTS, sellerTS, err := p.loadSaleTradeStates(ctx, tx, ah, args)
	if err != nil {
		return nil, err
	}

	asset, err := tx.TokenAccount(ctx, args.TokenAccount)
	if err != nil {
		return nil, fmt.Errorf("token account %s: %w", args.TokenAccount, err)
	}
	if asset.Owner != args.Seller {
		return nil, fmt.Errorf("token account %s not owned by seller %s: %w", args.TokenAccount, args.Seller, domain.ErrOwnerMismatch)
	}
	if asset.Mint != args.TokenMint {
		return nil, fmt.Errorf("token account %s holds %s, want %s: %w", args.TokenAccount, asset.Mint, args.TokenMint, domain.ErrMintMismatch)
	}
	if asset.Amount < args.TokenSize {
		return nil, fmt.Errorf("token account %s holds %d, sale needs %d: %w", args.TokenAccount, asset.Amount, args.TokenSize, domain.ErrInsufficientFunds)
	}
	meta, err := p.metadata.AssertValid(ctx, tx, args.Metadata, asset)
	if err != nil {
		return nil, err
	}

	escrow, err := tx.TokenAccount(ctx, args.EscrowPayment)
	if err != nil {
		return nil, fmt.Errorf("escrow %s: %w", args.EscrowPayment, err)
	}
	if escrow.Amount < args.Price {
		return nil, fmt.Errorf("escrow %s holds %d, price is %d: %w", args.EscrowPayment, escrow.Amount, args.Price, domain.ErrInsufficientFunds)
	}

	res := &SaleResult{MarketplaceFee: basisPoints(args.Price, ah.SellerFeeBasisPoints)}
	if owed := basisPoints(args.Price, meta.SellerFeeBasisPoints); owed > args.Price-res.MarketplaceFee {
		return nil, fmt.Errorf("royalties %d and fee %d exceed price %d: %w", owed, res.MarketplaceFee, args.Price, domain.ErrInsufficientFunds)
	}

	res.Royalties, err = p.payCreators(ctx, tx, ah, meta, args)
	if err != nil {
		return nil, err
	}
	if _, err := token.EnsureAccount(ctx, tx, args.Treasury, ah.Address, ah.TreasuryMint); err != nil {
		return nil, fmt.Errorf("treasury %s: %w", args.Treasury, err)
	}
	if err := token.Transfer(ctx, tx, args.EscrowPayment, args.Treasury, ah.Address, res.MarketplaceFee); err != nil {
		return nil, fmt.Errorf("pay marketplace fee: %w", err)
	}

	res.SellerProceeds = args.Price - res.Royalties - res.MarketplaceFee
	if err := p.ensureAssociated(ctx, tx, "seller_payment_receipt_account", args.SellerPaymentReceipt, args.Seller, ah.TreasuryMint); err != nil {
		return nil, err
	}
	if err := token.Transfer(ctx, tx, args.EscrowPayment, args.SellerPaymentReceipt, ah.Address, res.SellerProceeds); err != nil {
		return nil, fmt.Errorf("pay seller: %w", err)
	}

	if err := p.ensureAssociated(ctx, tx, "buyer_receipt_token_account", args.BuyerReceiptAccount, args.Buyer, args.TokenMint); err != nil {
		return nil, err
	}
	if err := token.Transfer(ctx, tx, args.TokenAccount, args.BuyerReceiptAccount, args.ProgramAsSigner, args.TokenSize); err != nil {
		return nil, fmt.Errorf("deliver asset: %w", err)
	}
	if err := p.revokeProgramDelegate(ctx, tx, args.TokenAccount, args.ProgramAsSigner); err != nil {
		return nil, err
	}

	if err := p.closeTradeStates(ctx, tx, buyerTS.Address, sellerTS.Address, args.FreeTradeState); err != nil {
		return nil, err
	}

	p.logger.Debug("sale executed",
		zap.Stringer("auction_house", ah.Address),
		zap.Stringer("buyer", args.Buyer),
		zap.Stringer("seller", args.Seller),
		zap.Uint64("price", args.Price),
		zap.Uint64("royalties", res.Royalties),
		zap.Uint64("fee", res.MarketplaceFee),
	)
	return res, nil
}

func (p *Program) verifySaleAccounts(ah *domain.AuctionHouse, args ExecuteSaleArgs) error {
	if args.TreasuryMint != ah.TreasuryMint {
		return fmt.Errorf("treasury_mint: %w: got %s, want %s", domain.ErrAddressMismatch, args.TreasuryMint, ah.TreasuryMint)
	}
	if args.FeeAccount != ah.FeeAccount {
		return fmt.Errorf("auction_house_fee_account: %w: got %s, want %s", domain.ErrAddressMismatch, args.FeeAccount, ah.FeeAccount)
	}
	if args.Treasury != ah.Treasury {
		return fmt.Errorf("auction_house_treasury: %w: got %s, want %s", domain.ErrAddressMismatch, args.Treasury, ah.Treasury)
	}

	checks := []struct {
		name  string
		got   pda.Pubkey
		seeds [][]byte
		bump  uint8
	}{
		{"auction_house_fee_account", args.FeeAccount, FeeAccountSeeds(ah.Address), ah.FeePayerBump},
		{"auction_house_treasury", args.Treasury, TreasurySeeds(ah.Address), ah.TreasuryBump},
		{"escrow_payment_account", args.EscrowPayment, EscrowSeeds(ah.Address, args.Buyer), args.EscrowBump},
		{"program_as_signer", args.ProgramAsSigner, ProgramAsSignerSeeds(), args.ProgramAsSignerBump},
		{"free_trade_state", args.FreeTradeState, SellerTradeStateSeeds(args.Seller, ah.Address, args.TokenAccount, ah.TreasuryMint, args.TokenMint, FreePrice, args.TokenSize), args.FreeTradeStateBump},
	}
	for _, c := range checks {
		if err := p.Verify(c.name, c.got, c.seeds, c.bump); err != nil {
			return err
		}
	}
	return nil
}

// loadSaleTradeStates loads the buyer and seller trade states and checks
// that they describe this sale.
func (p *Program) loadSaleTradeStates(ctx context.Context, tx storage.TradeStateTx, ah *domain.AuctionHouse, args ExecuteSaleArgs) (*domain.TradeState, *domain.TradeState, error) {
	buyerTS, err := loadTradeState(ctx, tx, "buyer_trade_state", args.BuyerTradeState)
	if err != nil {
		return nil, nil, err
	}
	seeds := BuyerTradeStateSeeds(args.Buyer, ah.Address, ah.TreasuryMint, args.TokenMint, args.Price, args.TokenSize)
	if err := p.Verify("buyer_trade_state", args.BuyerTradeState, seeds, buyerTS.Bump); err != nil {
		return nil, nil, err
	}
	if buyerTS.Kind != domain.TradeStateBuy || buyerTS.Wallet != args.Buyer ||
		buyerTS.Price != args.Price || buyerTS.TokenSize != args.TokenSize {
		return nil, nil, fmt.Errorf("buyer_trade_state %s does not match sale: %w", buyerTS.Address, domain.ErrTradeStateConflict)
	}

	sellerTS, err := loadTradeState(ctx, tx, "seller_trade_state", args.SellerTradeState)
	if err != nil {
		return nil, nil, err
	}
	seeds = SellerTradeStateSeeds(args.Seller, ah.Address, args.TokenAccount, ah.TreasuryMint, args.TokenMint, SentinelPrice, args.TokenSize)
	if err := p.Verify("seller_trade_state", args.SellerTradeState, seeds, sellerTS.Bump); err != nil {
		return nil, nil, err
	}
	if sellerTS.Kind != domain.TradeStateSell || sellerTS.Wallet != args.Seller ||
		sellerTS.TokenAccount != args.TokenAccount || sellerTS.TokenSize != args.TokenSize {
		return nil, nil, fmt.Errorf("seller_trade_state %s does not match sale: %w", sellerTS.Address, domain.ErrTradeStateConflict)
	}
	return buyerTS, sellerTS, nil
}

// payCreators distributes metadata royalties from escrow to the remaining
// accounts, which must list the creators in metadata order.
func (p *Program) payCreators(ctx context.Context, tx storage.Tx, ah *domain.AuctionHouse, meta *domain.Metadata, args ExecuteSaleArgs) (uint64, error) {
	royalties := basisPoints(args.Price, meta.SellerFeeBasisPoints)
	if royalties == 0 || len(meta.Creators) == 0 {
		return 0, nil
	}
	if len(args.Remaining) < len(meta.Creators) {
		return 0, fmt.Errorf("remaining accounts: %d given for %d creators: %w", len(args.Remaining), len(meta.Creators), domain.ErrAddressMismatch)
	}

	var paid uint64
	for i, creator := range meta.Creators {
		dst := args.Remaining[i]
		if dst.Creator != creator.Address {
			return 0, fmt.Errorf("remaining account %d: %w: got creator %s, want %s", i, domain.ErrAddressMismatch, dst.Creator, creator.Address)
		}
		share := percentOf(royalties, creator.Share)
		if share == 0 {
			continue
		}
		if err := p.ensureAssociated(ctx, tx, fmt.Sprintf("creator_%d", i), dst.TokenAccount, creator.Address, ah.TreasuryMint); err != nil {
			return 0, err
		}
		if err := token.Transfer(ctx, tx, args.EscrowPayment, dst.TokenAccount, ah.Address, share); err != nil {
			return 0, fmt.Errorf("pay creator %s: %w", creator.Address, err)
		}
		paid += share
	}
	return paid, nil
}

// ensureAssociated checks that addr is the associated account of (owner,
// mint) and creates it when missing.
func (p *Program) ensureAssociated(ctx context.Context, tx storage.TokenAccountTx, name string, addr, owner, mint pda.Pubkey) error {
	want, _, err := pda.AssociatedTokenAddress(owner, mint)
	if err != nil {
		return fmt.Errorf("derive %s: %w", name, err)
	}
	if want != addr {
		return fmt.Errorf("%s: %w: got %s, want %s", name, domain.ErrAddressMismatch, addr, want)
	}
	if _, err := token.EnsureAccount(ctx, tx, addr, owner, mint); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// revokeProgramDelegate clears a remaining program-as-signer allowance on account.
func (p *Program) revokeProgramDelegate(ctx context.Context, tx storage.TokenAccountTx, account, programAsSigner pda.Pubkey) error {
	acct, err := tx.TokenAccount(ctx, account)
	if err != nil {
		return fmt.Errorf("token account %s: %w", account, err)
	}
	if acct.Delegate != programAsSigner {
		return nil
	}
	return token.Revoke(ctx, tx, account, programAsSigner)
}

// closeTradeStates deletes the buyer and seller states and the free state
// if one was registered.
func (p *Program) closeTradeStates(ctx context.Context, tx storage.TradeStateTx, buyer, seller, free pda.Pubkey) error {
	for _, addr := range []pda.Pubkey{buyer, seller} {
		if err := tx.DeleteTradeState(ctx, addr); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("trade state %s vanished: %w", addr, domain.ErrTradeStateConflict)
			}
			return err
		}
	}
	if err := tx.DeleteTradeState(ctx, free); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}
