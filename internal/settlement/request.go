package settlement

import (
	"reward-center/internal/auctionhouse"
	"reward-center/internal/pda"
)

// BuyListingParams are the bumps of the accounts the caller derived.
type BuyListingParams struct {
	BuyerTradeStateBump  uint8 `json:"buyer_trade_state_bump"`
	EscrowPaymentBump    uint8 `json:"escrow_payment_bump"`
	FreeTradeStateBump   uint8 `json:"free_trade_state_bump"`
	SellerTradeStateBump uint8 `json:"seller_trade_state_bump"`
	ProgramAsSignerBump  uint8 `json:"program_as_signer_bump"`
}

// BuyListingRequest carries every account a settlement touches. None of
// them is trusted: each is re-derived or checked against ledger state
// before anything moves.
type BuyListingRequest struct {
	Buyer                   pda.Pubkey `json:"buyer"`
	PaymentAccount          pda.Pubkey `json:"payment_account"`
	TransferAuthority       pda.Pubkey `json:"transfer_authority"`
	BuyerRewardTokenAccount pda.Pubkey `json:"buyer_reward_token_account"`

	Seller                   pda.Pubkey `json:"seller"`
	SellerRewardTokenAccount pda.Pubkey `json:"seller_reward_token_account"`

	Listing      pda.Pubkey `json:"listing"`
	TokenAccount pda.Pubkey `json:"token_account"`
	TokenMint    pda.Pubkey `json:"token_mint"`
	Metadata     pda.Pubkey `json:"metadata"`
	TreasuryMint pda.Pubkey `json:"treasury_mint"`

	SellerPaymentReceiptAccount pda.Pubkey `json:"seller_payment_receipt_account"`
	BuyerReceiptTokenAccount    pda.Pubkey `json:"buyer_receipt_token_account"`

	EscrowPaymentAccount   pda.Pubkey `json:"escrow_payment_account"`
	AuctionHouse           pda.Pubkey `json:"auction_house"`
	AuctionHouseFeeAccount pda.Pubkey `json:"auction_house_fee_account"`
	AuctionHouseTreasury   pda.Pubkey `json:"auction_house_treasury"`

	BuyerTradeState      pda.Pubkey `json:"buyer_trade_state"`
	SellerTradeState     pda.Pubkey `json:"seller_trade_state"`
	FreeSellerTradeState pda.Pubkey `json:"free_seller_trade_state"`

	RewardCenter                   pda.Pubkey `json:"reward_center"`
	RewardCenterRewardTokenAccount pda.Pubkey `json:"reward_center_reward_token_account"`
	AuctioneerPDA                  pda.Pubkey `json:"ah_auctioneer_pda"`
	ProgramAsSigner                pda.Pubkey `json:"program_as_signer"`

	Params BuyListingParams `json:"params"`

	Remaining []auctionhouse.RemainingAccount `json:"remaining_accounts"`

	// Expires is the unix second after which the signature is void.
	Expires int64 `json:"expires"`
	// Signature is the transfer authority's signature of SigningMessage.
	Signature pda.Signature `json:"signature"`
}
