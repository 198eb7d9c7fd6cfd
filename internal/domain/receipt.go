package domain

import "reward-center/internal/pda"

// Receipt records one completed settlement.
// Corresponds to settlement_receipts table (ClickHouse).
type Receipt struct {
	ID               string     `json:"id"`      // uuid
	Listing          pda.Pubkey `json:"listing"` // closed listing
	RewardCenter     pda.Pubkey `json:"reward_center"`
	AuctionHouse     pda.Pubkey `json:"auction_house"`
	Buyer            pda.Pubkey `json:"buyer"`
	Seller           pda.Pubkey `json:"seller"`
	TokenMint        pda.Pubkey `json:"token_mint"`
	TreasuryMint     pda.Pubkey `json:"treasury_mint"`
	Price            uint64     `json:"price"`
	TokenSize        uint64     `json:"token_size"`
	MarketplaceFee   uint64     `json:"marketplace_fee"`    // paid to the auction-house treasury
	Royalties        uint64     `json:"royalties"`          // paid to creators
	BuyerReward      uint64     `json:"buyer_reward"`       // computed payout
	SellerReward     uint64     `json:"seller_reward"`      // computed payout
	BuyerRewardPaid  bool       `json:"buyer_reward_paid"`  // false when skipped for treasury balance
	SellerRewardPaid bool       `json:"seller_reward_paid"` // false when skipped for treasury balance
	SettledAt        int64      `json:"settled_at"`         // unix ms
}
