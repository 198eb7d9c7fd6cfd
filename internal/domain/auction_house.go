package domain

import "reward-center/internal/pda"

// AuctionHouse is one marketplace instance of the escrow/auction subsystem.
// Corresponds to auction_houses table.
type AuctionHouse struct {
	Address              pda.Pubkey // derived: [prefix, creator, treasury_mint]
	Creator              pda.Pubkey
	Authority            pda.Pubkey // instance administrator
	TreasuryMint         pda.Pubkey // currency trades settle in
	FeeAccount           pda.Pubkey // derived: [prefix, auction_house, "fee_payer"]
	Treasury             pda.Pubkey // derived: [prefix, auction_house, "treasury"]
	Bump                 uint8
	FeePayerBump         uint8
	TreasuryBump         uint8
	SellerFeeBasisPoints uint16 // marketplace fee taken from each sale
	HasAuctioneer        bool   // trades must go through a delegated auctioneer
}

// AuthorityScope is a bit set of operations an auctioneer may perform.
type AuthorityScope uint16

const (
	ScopeDeposit AuthorityScope = 1 << iota
	ScopeBuy
	ScopePublicBuy
	ScopeExecuteSale
	ScopeSell
	ScopeCancel
	ScopeWithdraw

	ScopeAll = ScopeDeposit | ScopeBuy | ScopePublicBuy | ScopeExecuteSale | ScopeSell | ScopeCancel | ScopeWithdraw
)

// Has reports whether all bits of want are present.
func (s AuthorityScope) Has(want AuthorityScope) bool {
	return s&want == want
}

// Auctioneer records that an auction house delegated authority to an
// external program-derived signer (the reward center).
// Corresponds to auctioneers table.
type Auctioneer struct {
	Address      pda.Pubkey // derived: ["auctioneer", auction_house, authority]
	AuctionHouse pda.Pubkey
	Authority    pda.Pubkey // delegated signer
	Scopes       AuthorityScope
	Bump         uint8
}
