package domain

import "reward-center/internal/pda"

// Listing is an active sell offer under a reward center.
// Corresponds to listings table. Closed (deleted) by a successful settlement.
type Listing struct {
	Address      pda.Pubkey `json:"address"` // derived: ["listing", seller, metadata, reward_center]
	RewardCenter pda.Pubkey `json:"reward_center"`
	Seller       pda.Pubkey `json:"seller"`
	Metadata     pda.Pubkey `json:"metadata"`      // asset metadata account
	TokenAccount pda.Pubkey `json:"token_account"` // seller account holding the asset
	Price        uint64     `json:"price"`         // negotiated price in treasury-mint units
	TokenSize    uint64     `json:"token_size"`    // quantity of the asset
	Bump         uint8      `json:"bump"`
	CreatedAt    int64      `json:"created_at"` // unix ms
}

// TradeStateKind distinguishes the trade-state intent shapes.
type TradeStateKind uint8

const (
	TradeStateBuy      TradeStateKind = iota + 1 // standing buyer bid
	TradeStateSell                               // standing seller ask
	TradeStateFreeSell                           // zero-price seller ask
)

// String returns the kind name.
func (k TradeStateKind) String() string {
	switch k {
	case TradeStateBuy:
		return "buy"
	case TradeStateSell:
		return "sell"
	case TradeStateFreeSell:
		return "free_sell"
	default:
		return "unknown"
	}
}

// TradeState is an open order. Its existence is the order state: present
// means open, absent means fulfilled or cancelled.
// Corresponds to trade_states table.
type TradeState struct {
	Address      pda.Pubkey
	Kind         TradeStateKind
	Wallet       pda.Pubkey // trader
	AuctionHouse pda.Pubkey
	TokenAccount pda.Pubkey // seller asset account; zero for buy states
	TreasuryMint pda.Pubkey
	TokenMint    pda.Pubkey
	Price        uint64
	TokenSize    uint64
	Bump         uint8
}
