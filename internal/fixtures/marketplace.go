// Package fixtures seeds a ledger with a complete demo marketplace: an
// auction house delegated to a funded reward center, an asset with
// metadata, a seller holding it and a buyer holding payment funds.
package fixtures

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"reward-center/internal/auctionhouse"
	"reward-center/internal/domain"
	"reward-center/internal/metaplex"
	"reward-center/internal/pda"
	"reward-center/internal/rewardcenter"
	"reward-center/internal/storage"
	"reward-center/internal/token"
)

// Key returns a deterministic wallet address for label.
func Key(label string) pda.Pubkey {
	return pda.Pubkey(sha256.Sum256([]byte("fixture:" + label)))
}

// Wallet returns the deterministic signing key of the wallet named label.
func Wallet(label string) ed25519.PrivateKey {
	seed := sha256.Sum256([]byte("fixture-wallet:" + label))
	return ed25519.NewKeyFromSeed(seed[:])
}

// Options size the demo marketplace.
type Options struct {
	MarketplaceFeeBasisPoints uint16 // auction house seller fee
	RoyaltyBasisPoints        uint16 // metadata seller fee
	Creators                  []domain.Creator
	Rules                     domain.RewardRules
	BuyerFunds                uint64 // buyer payment balance
	TreasuryFunds             uint64 // reward treasury balance
	AssetAmount               uint64 // seller asset balance
}

// DefaultOptions is a fee-free marketplace paying 10% of the price as
// reward, split evenly.
func DefaultOptions() Options {
	return Options{
		Rules: domain.RewardRules{
			SellerRewardPayoutBasisPoints: 5000,
			MathematicalOperand:           domain.PayoutDivide,
			PayoutNumeral:                 10,
		},
		BuyerFunds:    1_000_000,
		TreasuryFunds: 1_000_000,
		AssetAmount:   1,
	}
}

// Marketplace is the seeded state.
type Marketplace struct {
	AuctionHouse *domain.AuctionHouse
	RewardCenter *domain.RewardCenter

	Creator      pda.Pubkey
	Authority    pda.Pubkey
	Funder       pda.Pubkey
	Seller       pda.Pubkey
	Buyer        pda.Pubkey
	TreasuryMint pda.Pubkey
	RewardMint   pda.Pubkey
	TokenMint    pda.Pubkey
	Metadata     pda.Pubkey

	SellerTokenAccount  pda.Pubkey // seller asset account
	BuyerPaymentAccount pda.Pubkey // buyer treasury-mint account
	BuyerRewardAccount  pda.Pubkey
	SellerRewardAccount pda.Pubkey
	RewardTreasury      pda.Pubkey // reward center reward-token account

	wallets map[pda.Pubkey]ed25519.PrivateKey
}

// WalletKey returns the signing key of a marketplace wallet, or nil when
// addr is not one.
func (m *Marketplace) WalletKey(addr pda.Pubkey) ed25519.PrivateKey {
	return m.wallets[addr]
}

// LoadMarketplace seeds ledger and returns the accounts it created.
func LoadMarketplace(ctx context.Context, ledger storage.Ledger, ah *auctionhouse.Program, rc *rewardcenter.Service, opts Options) (*Marketplace, error) {
	m := &Marketplace{
		TreasuryMint: Key("treasury-mint"),
		RewardMint:   Key("reward-mint"),
		TokenMint:    Key("token-mint"),
		wallets:      make(map[pda.Pubkey]ed25519.PrivateKey),
	}
	for label, dst := range map[string]*pda.Pubkey{
		"creator":   &m.Creator,
		"authority": &m.Authority,
		"funder":    &m.Funder,
		"seller":    &m.Seller,
		"buyer":     &m.Buyer,
	} {
		key := Wallet(label)
		*dst = pda.PubkeyOf(key)
		m.wallets[*dst] = key
	}

	var err error
	if m.Metadata, _, err = metaplex.MetadataAddress(m.TokenMint); err != nil {
		return nil, fmt.Errorf("derive metadata: %w", err)
	}
	creators := opts.Creators
	if creators == nil {
		creators = []domain.Creator{{Address: m.Creator, Verified: true, Share: 100}}
	}

	err = ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		m.AuctionHouse, err = ah.CreateAuctionHouse(ctx, tx, auctionhouse.CreateArgs{
			Creator:              m.Creator,
			Authority:            m.Authority,
			TreasuryMint:         m.TreasuryMint,
			SellerFeeBasisPoints: opts.MarketplaceFeeBasisPoints,
			RequiresAuctioneer:   true,
		})
		if err != nil {
			return err
		}
		err = tx.CreateMetadata(ctx, &domain.Metadata{
			Address:              m.Metadata,
			Mint:                 m.TokenMint,
			UpdateAuthority:      m.Creator,
			Name:                 "Reward Center Demo",
			Symbol:               "RCD",
			URI:                  "https://example.com/demo.json",
			SellerFeeBasisPoints: opts.RoyaltyBasisPoints,
			Creators:             creators,
		})
		if err != nil {
			return fmt.Errorf("create metadata: %w", err)
		}

		accounts := []struct {
			dst         *pda.Pubkey
			owner, mint pda.Pubkey
			amount      uint64
		}{
			{&m.SellerTokenAccount, m.Seller, m.TokenMint, opts.AssetAmount},
			{&m.BuyerPaymentAccount, m.Buyer, m.TreasuryMint, opts.BuyerFunds},
			{&m.BuyerRewardAccount, m.Buyer, m.RewardMint, 0},
			{&m.SellerRewardAccount, m.Seller, m.RewardMint, 0},
			{nil, m.Funder, m.RewardMint, opts.TreasuryFunds},
		}
		for _, a := range accounts {
			acct, err := token.EnsureAssociatedAccount(ctx, tx, a.owner, a.mint)
			if err != nil {
				return err
			}
			acct.Amount = a.amount
			if err := tx.UpdateTokenAccount(ctx, acct); err != nil {
				return err
			}
			if a.dst != nil {
				*a.dst = acct.Address
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.RewardCenter, err = rc.CreateRewardCenter(ctx, rewardcenter.CreateParams{
		AuctionHouse: m.AuctionHouse.Address,
		Wallet:       m.Authority,
		TokenMint:    m.RewardMint,
		Rules:        opts.Rules,
	})
	if err != nil {
		return nil, err
	}
	if m.RewardTreasury, _, err = pda.AssociatedTokenAddress(m.RewardCenter.Address, m.RewardMint); err != nil {
		return nil, fmt.Errorf("derive reward treasury: %w", err)
	}

	if opts.TreasuryFunds > 0 {
		funder, _, err := pda.AssociatedTokenAddress(m.Funder, m.RewardMint)
		if err != nil {
			return nil, fmt.Errorf("derive funder account: %w", err)
		}
		if err := rc.Fund(ctx, m.RewardCenter.Address, funder, m.Funder, opts.TreasuryFunds); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// List creates a listing of one unit of the seller asset at price.
func (m *Marketplace) List(ctx context.Context, rc *rewardcenter.Service, price uint64) (*domain.Listing, error) {
	return rc.CreateListing(ctx, rewardcenter.CreateListingParams{
		RewardCenter: m.RewardCenter.Address,
		Seller:       m.Seller,
		TokenAccount: m.SellerTokenAccount,
		Metadata:     m.Metadata,
		Price:        price,
		TokenSize:    1,
	})
}
