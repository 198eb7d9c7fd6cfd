package rewardcenter

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"reward-center/internal/auctionhouse"
	"reward-center/internal/domain"
	"reward-center/internal/observability"
	"reward-center/internal/pda"
	"reward-center/internal/storage"
)

// CreateListingParams describe a new sell offer.
type CreateListingParams struct {
	RewardCenter pda.Pubkey
	Seller       pda.Pubkey
	TokenAccount pda.Pubkey // seller account holding the asset
	Metadata     pda.Pubkey
	Price        uint64
	TokenSize    uint64
}

// CreateListing registers the seller's sell order with the auction house
// and stores the listing. A second listing for the same (seller, metadata,
// reward center) fails with domain.ErrTradeStateConflict.
func (s *Service) CreateListing(ctx context.Context, p CreateListingParams) (listing *domain.Listing, err error) {
	defer func() { observability.RecordListingOperation("create", err) }()

	addr, bump, err := pda.FindProgramAddress(ListingSeeds(p.Seller, p.Metadata, p.RewardCenter), s.programID)
	if err != nil {
		return nil, fmt.Errorf("derive listing: %w", err)
	}

	err = s.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		rc, signer, err := s.rewardCenterSigner(ctx, tx, p.RewardCenter)
		if err != nil {
			return err
		}
		ah, err := tx.AuctionHouse(ctx, rc.AuctionHouse)
		if err != nil {
			return fmt.Errorf("auction house %s: %w", rc.AuctionHouse, err)
		}
		asset, err := tx.TokenAccount(ctx, p.TokenAccount)
		if err != nil {
			return fmt.Errorf("token account %s: %w", p.TokenAccount, err)
		}

		sellArgs, err := s.sellArgs(ah, p.Seller, p.TokenAccount, asset.Mint, p.Metadata, p.TokenSize)
		if err != nil {
			return err
		}
		if _, err := s.ah.Sell(ctx, tx, signer, sellArgs); err != nil {
			return err
		}

		listing = &domain.Listing{
			Address:      addr,
			RewardCenter: rc.Address,
			Seller:       p.Seller,
			Metadata:     p.Metadata,
			TokenAccount: p.TokenAccount,
			Price:        p.Price,
			TokenSize:    p.TokenSize,
			Bump:         bump,
			CreatedAt:    s.now().UnixMilli(),
		}
		if err := tx.CreateListing(ctx, listing); err != nil {
			return asConflict(fmt.Errorf("create listing %s: %w", addr, err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("listing created",
		zap.Stringer("listing", listing.Address),
		zap.Stringer("seller", listing.Seller),
		zap.Uint64("price", listing.Price),
	)
	return listing, nil
}

// UpdateListing changes the asking price. Only the seller may update.
func (s *Service) UpdateListing(ctx context.Context, listingAddr, seller pda.Pubkey, price uint64) (listing *domain.Listing, err error) {
	defer func() { observability.RecordListingOperation("update", err) }()

	err = s.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		listing, err = s.loadOwnListing(ctx, tx, listingAddr, seller)
		if err != nil {
			return err
		}
		listing.Price = price
		return tx.UpdateListing(ctx, listing)
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// CancelListing closes the seller trade state and deletes the listing.
// Only the seller may cancel.
func (s *Service) CancelListing(ctx context.Context, listingAddr, seller pda.Pubkey) (err error) {
	defer func() { observability.RecordListingOperation("cancel", err) }()

	return s.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		listing, err := s.loadOwnListing(ctx, tx, listingAddr, seller)
		if err != nil {
			return err
		}
		rc, signer, err := s.rewardCenterSigner(ctx, tx, listing.RewardCenter)
		if err != nil {
			return err
		}
		ah, err := tx.AuctionHouse(ctx, rc.AuctionHouse)
		if err != nil {
			return fmt.Errorf("auction house %s: %w", rc.AuctionHouse, err)
		}
		asset, err := tx.TokenAccount(ctx, listing.TokenAccount)
		if err != nil {
			return fmt.Errorf("token account %s: %w", listing.TokenAccount, err)
		}

		sell, err := s.sellArgs(ah, listing.Seller, listing.TokenAccount, asset.Mint, listing.Metadata, listing.TokenSize)
		if err != nil {
			return err
		}
		err = s.ah.Cancel(ctx, tx, signer, auctionhouse.CancelArgs{
			Wallet:          listing.Seller,
			TokenAccount:    listing.TokenAccount,
			AuctionHouse:    ah.Address,
			TradeState:      sell.SellerTradeState,
			ProgramAsSigner: sell.ProgramAsSigner,
		})
		if err != nil {
			return err
		}
		return tx.DeleteListing(ctx, listing.Address)
	})
}

// Listing returns the listing at addr.
func (s *Service) Listing(ctx context.Context, addr pda.Pubkey) (*domain.Listing, error) {
	var listing *domain.Listing
	err := s.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		listing, err = tx.Listing(ctx, addr)
		return err
	})
	return listing, err
}

func (s *Service) loadOwnListing(ctx context.Context, tx storage.ListingTx, addr, seller pda.Pubkey) (*domain.Listing, error) {
	listing, err := tx.Listing(ctx, addr)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("listing %s is closed: %w", addr, domain.ErrTradeStateConflict)
		}
		return nil, err
	}
	if listing.Seller != seller {
		return nil, fmt.Errorf("listing %s belongs to %s: %w", addr, listing.Seller, domain.ErrUnauthorized)
	}
	return listing, nil
}

func (s *Service) rewardCenterSigner(ctx context.Context, tx storage.RewardCenterTx, addr pda.Pubkey) (*domain.RewardCenter, pda.Signer, error) {
	rc, err := tx.RewardCenter(ctx, addr)
	if err != nil {
		return nil, pda.Signer{}, fmt.Errorf("reward center %s: %w", addr, err)
	}
	signer, err := Signer(s.programID, rc)
	if err != nil {
		return nil, pda.Signer{}, err
	}
	return rc, signer, nil
}

// sellArgs derives the auction house accounts of a listing's sell order.
func (s *Service) sellArgs(ah *domain.AuctionHouse, seller, tokenAccount, tokenMint, metadata pda.Pubkey, size uint64) (auctionhouse.SellArgs, error) {
	sts, stsBump, err := s.ah.Find(auctionhouse.SellerTradeStateSeeds(seller, ah.Address, tokenAccount, ah.TreasuryMint, tokenMint, auctionhouse.SentinelPrice, size))
	if err != nil {
		return auctionhouse.SellArgs{}, fmt.Errorf("derive seller trade state: %w", err)
	}
	fts, ftsBump, err := s.ah.Find(auctionhouse.SellerTradeStateSeeds(seller, ah.Address, tokenAccount, ah.TreasuryMint, tokenMint, auctionhouse.FreePrice, size))
	if err != nil {
		return auctionhouse.SellArgs{}, fmt.Errorf("derive free trade state: %w", err)
	}
	pas, pasBump, err := s.ah.Find(auctionhouse.ProgramAsSignerSeeds())
	if err != nil {
		return auctionhouse.SellArgs{}, fmt.Errorf("derive program as signer: %w", err)
	}
	return auctionhouse.SellArgs{
		Wallet:              seller,
		TokenAccount:        tokenAccount,
		Metadata:            metadata,
		AuctionHouse:        ah.Address,
		SellerTradeState:    sts,
		FreeTradeState:      fts,
		ProgramAsSigner:     pas,
		TradeStateBump:      stsBump,
		FreeTradeStateBump:  ftsBump,
		ProgramAsSignerBump: pasBump,
		TokenSize:           size,
	}, nil
}
