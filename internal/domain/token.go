package domain

import "reward-center/internal/pda"

// TokenAccount is a balance of one mint held by one owner. Escrow, fee and
// treasury accounts are token accounts owned by the auction house.
// Corresponds to token_accounts table.
type TokenAccount struct {
	Address         pda.Pubkey
	Mint            pda.Pubkey
	Owner           pda.Pubkey
	Amount          uint64
	Delegate        pda.Pubkey // zero when no delegate is approved
	DelegatedAmount uint64
}

// Creator is a royalty recipient listed in asset metadata.
type Creator struct {
	Address  pda.Pubkey `json:"address"`
	Verified bool       `json:"verified"`
	Share    uint8      `json:"share"` // percent, creators sum to 100
}

// Metadata describes an asset mint.
// Corresponds to metadata table.
type Metadata struct {
	Address              pda.Pubkey // derived: ["metadata", metadata_program, mint]
	Mint                 pda.Pubkey
	UpdateAuthority      pda.Pubkey
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16 // creator royalty
	Creators             []Creator
}
