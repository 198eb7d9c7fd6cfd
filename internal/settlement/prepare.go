package settlement

import (
	"context"
	"errors"
	"fmt"

	"reward-center/internal/auctionhouse"
	"reward-center/internal/domain"
	"reward-center/internal/pda"
	"reward-center/internal/storage"
)

// Buyer identifies who pays for a listing.
type Buyer struct {
	Wallet            pda.Pubkey `json:"wallet"`
	PaymentAccount    pda.Pubkey `json:"payment_account"`    // zero: associated account for the treasury mint
	TransferAuthority pda.Pubkey `json:"transfer_authority"` // zero: Wallet
}

// Prepare derives the complete BuyListingRequest for buyer to take the
// listing at listingAddr, reading the listing, its reward center and
// auction house from the ledger. It does not mutate anything; the request
// is validated again by BuyListing. The transfer authority signs the result
// with Sign before it expires.
func (e *Engine) Prepare(ctx context.Context, listingAddr pda.Pubkey, buyer Buyer) (*BuyListingRequest, error) {
	var req *BuyListingRequest
	err := e.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		listing, err := tx.Listing(ctx, listingAddr)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("listing %s is closed: %w", listingAddr, domain.ErrTradeStateConflict)
			}
			return err
		}
		rc, err := tx.RewardCenter(ctx, listing.RewardCenter)
		if err != nil {
			return fmt.Errorf("reward center %s: %w", listing.RewardCenter, err)
		}
		ah, err := tx.AuctionHouse(ctx, rc.AuctionHouse)
		if err != nil {
			return fmt.Errorf("auction house %s: %w", rc.AuctionHouse, err)
		}
		asset, err := tx.TokenAccount(ctx, listing.TokenAccount)
		if err != nil {
			return fmt.Errorf("token account %s: %w", listing.TokenAccount, err)
		}
		meta, err := e.metadata.AssertValid(ctx, tx, listing.Metadata, asset)
		if err != nil {
			return err
		}
		req, err = e.derive(ah, rc, listing, asset.Mint, meta, buyer)
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (e *Engine) derive(ah *domain.AuctionHouse, rc *domain.RewardCenter, listing *domain.Listing, tokenMint pda.Pubkey, meta *domain.Metadata, buyer Buyer) (*BuyListingRequest, error) {
	req := &BuyListingRequest{
		Buyer:                  buyer.Wallet,
		PaymentAccount:         buyer.PaymentAccount,
		TransferAuthority:      buyer.TransferAuthority,
		Seller:                 listing.Seller,
		Listing:                listing.Address,
		TokenAccount:           listing.TokenAccount,
		TokenMint:              tokenMint,
		Metadata:               listing.Metadata,
		TreasuryMint:           ah.TreasuryMint,
		AuctionHouse:           ah.Address,
		AuctionHouseFeeAccount: ah.FeeAccount,
		AuctionHouseTreasury:   ah.Treasury,
		RewardCenter:           rc.Address,
		Expires:                e.now().Add(authorizationTTL).Unix(),
	}
	if req.TransferAuthority.IsZero() {
		req.TransferAuthority = buyer.Wallet
	}

	ata := func(dst *pda.Pubkey, owner, mint pda.Pubkey) error {
		addr, _, err := pda.AssociatedTokenAddress(owner, mint)
		if err != nil {
			return fmt.Errorf("derive associated account of %s: %w", owner, err)
		}
		*dst = addr
		return nil
	}
	find := func(dst *pda.Pubkey, bump *uint8, name string, seeds [][]byte) error {
		addr, b, err := e.ah.Find(seeds)
		if err != nil {
			return fmt.Errorf("derive %s: %w", name, err)
		}
		*dst = addr
		if bump != nil {
			*bump = b
		}
		return nil
	}

	p := &req.Params
	steps := []func() error{
		func() error {
			if !req.PaymentAccount.IsZero() {
				return nil
			}
			return ata(&req.PaymentAccount, buyer.Wallet, ah.TreasuryMint)
		},
		func() error { return ata(&req.BuyerRewardTokenAccount, buyer.Wallet, rc.TokenMint) },
		func() error { return ata(&req.SellerRewardTokenAccount, listing.Seller, rc.TokenMint) },
		func() error { return ata(&req.RewardCenterRewardTokenAccount, rc.Address, rc.TokenMint) },
		func() error { return ata(&req.SellerPaymentReceiptAccount, listing.Seller, ah.TreasuryMint) },
		func() error { return ata(&req.BuyerReceiptTokenAccount, buyer.Wallet, tokenMint) },
		func() error {
			return find(&req.EscrowPaymentAccount, &p.EscrowPaymentBump, "escrow_payment_account",
				auctionhouse.EscrowSeeds(ah.Address, buyer.Wallet))
		},
		func() error {
			return find(&req.BuyerTradeState, &p.BuyerTradeStateBump, "buyer_trade_state",
				auctionhouse.BuyerTradeStateSeeds(buyer.Wallet, ah.Address, ah.TreasuryMint, tokenMint, listing.Price, listing.TokenSize))
		},
		func() error {
			return find(&req.SellerTradeState, &p.SellerTradeStateBump, "seller_trade_state",
				auctionhouse.SellerTradeStateSeeds(listing.Seller, ah.Address, listing.TokenAccount, ah.TreasuryMint, tokenMint, auctionhouse.SentinelPrice, listing.TokenSize))
		},
		func() error {
			return find(&req.FreeSellerTradeState, &p.FreeTradeStateBump, "free_seller_trade_state",
				auctionhouse.SellerTradeStateSeeds(listing.Seller, ah.Address, listing.TokenAccount, ah.TreasuryMint, tokenMint, auctionhouse.FreePrice, listing.TokenSize))
		},
		func() error {
			return find(&req.ProgramAsSigner, &p.ProgramAsSignerBump, "program_as_signer", auctionhouse.ProgramAsSignerSeeds())
		},
		func() error {
			return find(&req.AuctioneerPDA, nil, "ah_auctioneer_pda", auctionhouse.AuctioneerSeeds(ah.Address, rc.Address))
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	for _, c := range meta.Creators {
		ra := auctionhouse.RemainingAccount{Creator: c.Address}
		if err := ata(&ra.TokenAccount, c.Address, ah.TreasuryMint); err != nil {
			return nil, err
		}
		req.Remaining = append(req.Remaining, ra)
	}
	return req, nil
}
