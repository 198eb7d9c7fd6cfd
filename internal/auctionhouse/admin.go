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

// CreateArgs configure a new auction house.
type CreateArgs struct {
	Creator              pda.Pubkey
	Authority            pda.Pubkey
	TreasuryMint         pda.Pubkey
	SellerFeeBasisPoints uint16
	RequiresAuctioneer   bool
}

// CreateAuctionHouse derives and stores a new auction house together with
// its treasury token account.
func (p *Program) CreateAuctionHouse(ctx context.Context, tx storage.Tx, args CreateArgs) (*domain.AuctionHouse, error) {
	if args.SellerFeeBasisPoints > domain.BasisPointsDenominator {
		return nil, fmt.Errorf("seller fee %d bps exceeds %d: %w", args.SellerFeeBasisPoints, domain.BasisPointsDenominator, storage.ErrInvalidInput)
	}

	addr, bump, err := p.Find(AuctionHouseSeeds(args.Creator, args.TreasuryMint))
	if err != nil {
		return nil, fmt.Errorf("derive auction house: %w", err)
	}
	fee, feeBump, err := p.Find(FeeAccountSeeds(addr))
	if err != nil {
		return nil, fmt.Errorf("derive fee account: %w", err)
	}
	treasury, treasuryBump, err := p.Find(TreasurySeeds(addr))
	if err != nil {
		return nil, fmt.Errorf("derive treasury: %w", err)
	}

	ah := &domain.AuctionHouse{
		Address:              addr,
		Creator:              args.Creator,
		Authority:            args.Authority,
		TreasuryMint:         args.TreasuryMint,
		FeeAccount:           fee,
		Treasury:             treasury,
		Bump:                 bump,
		FeePayerBump:         feeBump,
		TreasuryBump:         treasuryBump,
		SellerFeeBasisPoints: args.SellerFeeBasisPoints,
		HasAuctioneer:        args.RequiresAuctioneer,
	}
	if err := tx.CreateAuctionHouse(ctx, ah); err != nil {
		return nil, fmt.Errorf("create auction house %s: %w", addr, err)
	}
	if _, err := token.EnsureAccount(ctx, tx, treasury, addr, args.TreasuryMint); err != nil {
		return nil, fmt.Errorf("treasury %s: %w", treasury, err)
	}

	p.logger.Info("auction house created",
		zap.Stringer("auction_house", addr),
		zap.Stringer("treasury_mint", args.TreasuryMint),
		zap.Uint16("seller_fee_bps", args.SellerFeeBasisPoints),
	)
	return ah, nil
}

// DelegateAuctioneer records that authority may act on behalf of the
// auction house within scopes. Only the auction house authority may delegate.
func (p *Program) DelegateAuctioneer(ctx context.Context, tx storage.AuctionHouseTx, auctionHouse, authority, delegate pda.Pubkey, scopes domain.AuthorityScope) (*domain.Auctioneer, error) {
	ah, err := p.loadAuctionHouse(ctx, tx, auctionHouse)
	if err != nil {
		return nil, err
	}
	if ah.Authority != authority {
		return nil, fmt.Errorf("%s is not the authority of %s: %w", authority, ah.Address, domain.ErrUnauthorized)
	}

	addr, bump, err := p.Find(AuctioneerSeeds(ah.Address, delegate))
	if err != nil {
		return nil, fmt.Errorf("derive auctioneer: %w", err)
	}
	a := &domain.Auctioneer{
		Address:      addr,
		AuctionHouse: ah.Address,
		Authority:    delegate,
		Scopes:       scopes,
		Bump:         bump,
	}
	if err := tx.CreateAuctioneer(ctx, a); err != nil {
		return nil, fmt.Errorf("delegate auctioneer %s: %w", addr, err)
	}
	return a, nil
}

// WithdrawFromTreasury moves collected marketplace fees to destination.
// Only the auction house authority may withdraw.
func (p *Program) WithdrawFromTreasury(ctx context.Context, tx storage.Tx, auctionHouse, authority, destination pda.Pubkey, amount uint64) error {
	ah, err := p.loadAuctionHouse(ctx, tx, auctionHouse)
	if err != nil {
		return err
	}
	if ah.Authority != authority {
		return fmt.Errorf("%s is not the authority of %s: %w", authority, ah.Address, domain.ErrUnauthorized)
	}

	dst, err := tx.TokenAccount(ctx, destination)
	if err != nil {
		return fmt.Errorf("destination %s: %w", destination, err)
	}
	if dst.Mint != ah.TreasuryMint {
		return fmt.Errorf("destination %s holds %s: %w", destination, dst.Mint, domain.ErrMintMismatch)
	}
	if err := token.Transfer(ctx, tx, ah.Treasury, destination, ah.Address, amount); err != nil {
		return fmt.Errorf("withdraw from treasury: %w", err)
	}

	p.logger.Info("treasury withdrawal",
		zap.Stringer("auction_house", ah.Address),
		zap.Stringer("destination", destination),
		zap.Uint64("amount", amount),
	)
	return nil
}
