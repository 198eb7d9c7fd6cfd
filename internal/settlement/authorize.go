package settlement

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"time"

	"reward-center/internal/domain"
	"reward-center/internal/pda"
)

// signingTag prefixes every buy authorization.
const signingTag = "reward-center/buy-listing/v1"

// authorizationTTL is how long a prepared request stays signable.
const authorizationTTL = 2 * time.Minute

// SigningMessage returns the bytes the transfer authority signs: the tag,
// every account in declaration order, the bumps, the remaining accounts and
// the expiry. The buyer trade state commits to the listing price and size.
func (r *BuyListingRequest) SigningMessage() []byte {
	keys := []pda.Pubkey{
		r.Buyer, r.PaymentAccount, r.TransferAuthority, r.BuyerRewardTokenAccount,
		r.Seller, r.SellerRewardTokenAccount,
		r.Listing, r.TokenAccount, r.TokenMint, r.Metadata, r.TreasuryMint,
		r.SellerPaymentReceiptAccount, r.BuyerReceiptTokenAccount,
		r.EscrowPaymentAccount, r.AuctionHouse, r.AuctionHouseFeeAccount, r.AuctionHouseTreasury,
		r.BuyerTradeState, r.SellerTradeState, r.FreeSellerTradeState,
		r.RewardCenter, r.RewardCenterRewardTokenAccount, r.AuctioneerPDA, r.ProgramAsSigner,
	}

	size := len(signingTag) + (len(keys)+2*len(r.Remaining))*pda.PubkeyLength + 5 + 4 + 8
	msg := make([]byte, 0, size)
	msg = append(msg, signingTag...)
	for _, k := range keys {
		msg = append(msg, k[:]...)
	}
	p := r.Params
	msg = append(msg, p.BuyerTradeStateBump, p.EscrowPaymentBump, p.FreeTradeStateBump, p.SellerTradeStateBump, p.ProgramAsSignerBump)
	msg = binary.LittleEndian.AppendUint32(msg, uint32(len(r.Remaining)))
	for _, ra := range r.Remaining {
		msg = append(msg, ra.Creator[:]...)
		msg = append(msg, ra.TokenAccount[:]...)
	}
	return binary.LittleEndian.AppendUint64(msg, uint64(r.Expires))
}

// Sign sets Signature. key must be the transfer authority's wallet key.
func (r *BuyListingRequest) Sign(key ed25519.PrivateKey) {
	r.Signature = pda.Sign(key, r.SigningMessage())
}

// authorize fails with domain.ErrUnauthorized unless the transfer authority
// signed the request and the signature has not expired.
func (r *BuyListingRequest) authorize(now time.Time) error {
	if r.Signature.IsZero() {
		return fmt.Errorf("buy of listing %s not signed by transfer authority %s: %w", r.Listing, r.TransferAuthority, domain.ErrUnauthorized)
	}
	if now.Unix() > r.Expires {
		return fmt.Errorf("buy of listing %s expired at %d: %w", r.Listing, r.Expires, domain.ErrUnauthorized)
	}
	if !r.Signature.Verify(r.TransferAuthority, r.SigningMessage()) {
		return fmt.Errorf("signature of buy of listing %s is not by transfer authority %s: %w", r.Listing, r.TransferAuthority, domain.ErrUnauthorized)
	}
	return nil
}
