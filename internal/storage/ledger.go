package storage

import (
	"context"

	"reward-center/internal/domain"
	"reward-center/internal/pda"
)

// Ledger executes a function as one all-or-nothing unit. Every mutation made
// through the Tx is applied when fn returns nil and discarded when it
// returns an error; the error is returned unchanged.
type Ledger interface {
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx gives access to ledger accounts inside one atomic unit.
// Getters return ErrNotFound for absent accounts. Create* returns
// ErrDuplicateKey when the address is taken, which makes creation an
// exclusive claim on the address. Update* and Delete* return ErrNotFound
// when the account does not exist.
type Tx interface {
	AuctionHouseTx
	RewardCenterTx
	ListingTx
	TradeStateTx
	TokenAccountTx
	MetadataTx
}

// AuctionHouseTx accesses auction houses and their auctioneer delegations.
type AuctionHouseTx interface {
	AuctionHouse(ctx context.Context, addr pda.Pubkey) (*domain.AuctionHouse, error)
	CreateAuctionHouse(ctx context.Context, ah *domain.AuctionHouse) error
	Auctioneer(ctx context.Context, addr pda.Pubkey) (*domain.Auctioneer, error)
	CreateAuctioneer(ctx context.Context, a *domain.Auctioneer) error
}

// RewardCenterTx accesses reward centers.
type RewardCenterTx interface {
	RewardCenter(ctx context.Context, addr pda.Pubkey) (*domain.RewardCenter, error)
	CreateRewardCenter(ctx context.Context, rc *domain.RewardCenter) error
	UpdateRewardCenter(ctx context.Context, rc *domain.RewardCenter) error
}

// ListingTx accesses listings.
type ListingTx interface {
	Listing(ctx context.Context, addr pda.Pubkey) (*domain.Listing, error)
	CreateListing(ctx context.Context, l *domain.Listing) error
	UpdateListing(ctx context.Context, l *domain.Listing) error
	DeleteListing(ctx context.Context, addr pda.Pubkey) error
}

// TradeStateTx accesses trade states.
type TradeStateTx interface {
	TradeState(ctx context.Context, addr pda.Pubkey) (*domain.TradeState, error)
	CreateTradeState(ctx context.Context, ts *domain.TradeState) error
	DeleteTradeState(ctx context.Context, addr pda.Pubkey) error
}

// TokenAccountTx accesses token balances.
type TokenAccountTx interface {
	TokenAccount(ctx context.Context, addr pda.Pubkey) (*domain.TokenAccount, error)
	CreateTokenAccount(ctx context.Context, a *domain.TokenAccount) error
	UpdateTokenAccount(ctx context.Context, a *domain.TokenAccount) error
}

// MetadataTx accesses asset metadata.
type MetadataTx interface {
	Metadata(ctx context.Context, addr pda.Pubkey) (*domain.Metadata, error)
	CreateMetadata(ctx context.Context, m *domain.Metadata) error
}

// ReceiptStore provides access to settlement_receipts storage.
type ReceiptStore interface {
	// Insert adds a new receipt. Returns ErrDuplicateKey if the receipt ID exists.
	Insert(ctx context.Context, r *domain.Receipt) error

	// GetByListing retrieves receipts for a listing, ordered by settled_at ASC.
	GetByListing(ctx context.Context, listing pda.Pubkey) ([]*domain.Receipt, error)

	// GetByRewardCenter retrieves receipts for a reward center within [start, end] (inclusive, unix ms).
	GetByRewardCenter(ctx context.Context, rewardCenter pda.Pubkey, start, end int64) ([]*domain.Receipt, error)
}
