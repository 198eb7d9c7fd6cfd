package settlement

import (
	"context"
	"errors"
	"fmt"

	"reward-center/internal/auctionhouse"
	"reward-center/internal/domain"
	"reward-center/internal/pda"
	"reward-center/internal/rewardcenter"
	"reward-center/internal/storage"
)

// state is the ledger view a settlement runs against.
type state struct {
	rc      *domain.RewardCenter
	ah      *domain.AuctionHouse
	listing *domain.Listing
	signer  pda.Signer
}

// checkPreconditions validates every supplied account without mutating the
// ledger.
func (e *Engine) checkPreconditions(ctx context.Context, tx storage.Tx, req BuyListingRequest) (*state, error) {
	rc, err := tx.RewardCenter(ctx, req.RewardCenter)
	if err != nil {
		return nil, missing("reward_center", req.RewardCenter, err)
	}
	if err := pda.Verify("reward_center", req.RewardCenter, rewardcenter.RewardCenterSeeds(rc.AuctionHouse), rc.Bump, e.programID); err != nil {
		return nil, err
	}
	if err := sameAccount("auction_house", req.AuctionHouse, rc.AuctionHouse); err != nil {
		return nil, err
	}

	ah, err := tx.AuctionHouse(ctx, req.AuctionHouse)
	if err != nil {
		return nil, missing("auction_house", req.AuctionHouse, err)
	}
	if err := e.ah.Verify("auction_house", req.AuctionHouse, auctionhouse.AuctionHouseSeeds(ah.Creator, ah.TreasuryMint), ah.Bump); err != nil {
		return nil, err
	}
	if err := sameAccount("treasury_mint", req.TreasuryMint, ah.TreasuryMint); err != nil {
		return nil, err
	}
	if err := sameAccount("auction_house_fee_account", req.AuctionHouseFeeAccount, ah.FeeAccount); err != nil {
		return nil, err
	}
	if err := sameAccount("auction_house_treasury", req.AuctionHouseTreasury, ah.Treasury); err != nil {
		return nil, err
	}

	listing, err := tx.Listing(ctx, req.Listing)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("listing %s is closed: %w", req.Listing, domain.ErrTradeStateConflict)
		}
		return nil, err
	}
	if err := pda.Verify("listing", req.Listing, rewardcenter.ListingSeeds(req.Seller, req.Metadata, rc.Address), listing.Bump, e.programID); err != nil {
		return nil, err
	}
	if err := sameAccount("token_account", req.TokenAccount, listing.TokenAccount); err != nil {
		return nil, err
	}

	if err := e.checkRewardAccounts(ctx, tx, rc, req); err != nil {
		return nil, err
	}

	asset, err := tx.TokenAccount(ctx, req.TokenAccount)
	if err != nil {
		return nil, missing("token_account", req.TokenAccount, err)
	}
	if asset.Owner != req.Seller {
		return nil, fmt.Errorf("token account %s not owned by seller %s: %w", req.TokenAccount, req.Seller, domain.ErrOwnerMismatch)
	}
	if asset.Mint != req.TokenMint {
		return nil, fmt.Errorf("token account %s holds %s, want %s: %w", req.TokenAccount, asset.Mint, req.TokenMint, domain.ErrMintMismatch)
	}

	if err := e.checkDerivations(ctx, tx, ah, rc, listing, req); err != nil {
		return nil, err
	}
	if _, err := e.metadata.AssertValid(ctx, tx, req.Metadata, asset); err != nil {
		return nil, err
	}

	signer, err := rewardcenter.Signer(e.programID, rc)
	if err != nil {
		return nil, err
	}
	return &state{rc: rc, ah: ah, listing: listing, signer: signer}, nil
}

// checkRewardAccounts validates the reward treasury and both reward
// destinations against the reward center's token mint.
func (e *Engine) checkRewardAccounts(ctx context.Context, tx storage.TokenAccountTx, rc *domain.RewardCenter, req BuyListingRequest) error {
	treasury, err := tx.TokenAccount(ctx, req.RewardCenterRewardTokenAccount)
	if err != nil {
		return missing("reward_center_reward_token_account", req.RewardCenterRewardTokenAccount, err)
	}
	if treasury.Mint != rc.TokenMint {
		return fmt.Errorf("reward treasury %s holds %s, want %s: %w", treasury.Address, treasury.Mint, rc.TokenMint, domain.ErrMintMismatch)
	}
	if treasury.Owner != rc.Address {
		return fmt.Errorf("reward treasury %s not owned by %s: %w", treasury.Address, rc.Address, domain.ErrOwnerMismatch)
	}

	buyer, err := tx.TokenAccount(ctx, req.BuyerRewardTokenAccount)
	if err != nil {
		return missing("buyer_reward_token_account", req.BuyerRewardTokenAccount, err)
	}
	if buyer.Mint != rc.TokenMint {
		return fmt.Errorf("buyer reward account %s holds %s, want %s: %w", buyer.Address, buyer.Mint, rc.TokenMint, domain.ErrMintMismatch)
	}
	if buyer.Owner != req.Buyer {
		return fmt.Errorf("buyer reward account %s not owned by %s: %w", buyer.Address, req.Buyer, domain.ErrOwnerMismatch)
	}

	seller, err := tx.TokenAccount(ctx, req.SellerRewardTokenAccount)
	if err != nil {
		return missing("seller_reward_token_account", req.SellerRewardTokenAccount, err)
	}
	if seller.Mint != buyer.Mint {
		return fmt.Errorf("seller reward account %s holds %s, want %s: %w", seller.Address, seller.Mint, buyer.Mint, domain.ErrMintMismatch)
	}
	if seller.Owner != req.Seller {
		return fmt.Errorf("seller reward account %s not owned by %s: %w", seller.Address, req.Seller, domain.ErrOwnerMismatch)
	}
	return nil
}

// checkDerivations re-derives every auction house account of the sale from
// the supplied bumps.
func (e *Engine) checkDerivations(ctx context.Context, tx storage.AuctionHouseTx, ah *domain.AuctionHouse, rc *domain.RewardCenter, listing *domain.Listing, req BuyListingRequest) error {
	p := req.Params
	checks := []struct {
		name  string
		got   pda.Pubkey
		seeds [][]byte
		bump  uint8
	}{
		{"auction_house_fee_account", req.AuctionHouseFeeAccount, auctionhouse.FeeAccountSeeds(ah.Address), ah.FeePayerBump},
		{"auction_house_treasury", req.AuctionHouseTreasury, auctionhouse.TreasurySeeds(ah.Address), ah.TreasuryBump},
		{"escrow_payment_account", req.EscrowPaymentAccount, auctionhouse.EscrowSeeds(ah.Address, req.Buyer), p.EscrowPaymentBump},
		{
			"buyer_trade_state", req.BuyerTradeState,
			auctionhouse.BuyerTradeStateSeeds(req.Buyer, ah.Address, ah.TreasuryMint, req.TokenMint, listing.Price, listing.TokenSize),
			p.BuyerTradeStateBump,
		},
		{
			"seller_trade_state", req.SellerTradeState,
			auctionhouse.SellerTradeStateSeeds(req.Seller, ah.Address, req.TokenAccount, ah.TreasuryMint, req.TokenMint, auctionhouse.SentinelPrice, listing.TokenSize),
			p.SellerTradeStateBump,
		},
		{
			"free_seller_trade_state", req.FreeSellerTradeState,
			auctionhouse.SellerTradeStateSeeds(req.Seller, ah.Address, req.TokenAccount, ah.TreasuryMint, req.TokenMint, auctionhouse.FreePrice, listing.TokenSize),
			p.FreeTradeStateBump,
		},
		{"program_as_signer", req.ProgramAsSigner, auctionhouse.ProgramAsSignerSeeds(), p.ProgramAsSignerBump},
	}
	for _, c := range checks {
		if err := e.ah.Verify(c.name, c.got, c.seeds, c.bump); err != nil {
			return err
		}
	}

	auctioneer, err := tx.Auctioneer(ctx, req.AuctioneerPDA)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("ah_auctioneer_pda %s not delegated: %w", req.AuctioneerPDA, domain.ErrUnauthorized)
		}
		return err
	}
	return e.ah.Verify("ah_auctioneer_pda", req.AuctioneerPDA, auctionhouse.AuctioneerSeeds(ah.Address, rc.Address), auctioneer.Bump)
}

// sameAccount checks a supplied account against the one recorded in state.
func sameAccount(name string, got, want pda.Pubkey) error {
	if got != want {
		return fmt.Errorf("%s: %w: got %s, want %s", name, domain.ErrAddressMismatch, got, want)
	}
	return nil
}

// missing maps an absent supplied account to an address mismatch.
func missing(name string, addr pda.Pubkey, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", name, addr, domain.ErrAddressMismatch)
	}
	return fmt.Errorf("%s %s: %w", name, addr, err)
}
