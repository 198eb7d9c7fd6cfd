// Package rewardcenter manages reward centers and their listings: the
// accounts that wrap an auction house with a token reward and act as its
// delegated auctioneer.
package rewardcenter

import (
	"fmt"

	"reward-center/internal/domain"
	"reward-center/internal/pda"
)

// DefaultProgramID is the mainnet reward center program.
var DefaultProgramID = pda.MustParsePubkey("RwDDvPp7ta9qqUwxbBfShsNreBaSsKvFcHzMxfBC3Ki")

// Seed tags.
const (
	RewardCenterTag = "reward_center"
	ListingTag      = "listing"
)

// RewardCenterSeeds: ["reward_center", auction_house]
func RewardCenterSeeds(auctionHouse pda.Pubkey) [][]byte {
	return [][]byte{[]byte(RewardCenterTag), auctionHouse[:]}
}

// ListingSeeds: ["listing", seller, metadata, reward_center]
func ListingSeeds(seller, metadata, rewardCenter pda.Pubkey) [][]byte {
	return [][]byte{[]byte(ListingTag), seller[:], metadata[:], rewardCenter[:]}
}

// Signer proves authority of rc by re-deriving its address from its seeds.
// Every auction house operation the reward center performs is signed with it.
func Signer(programID pda.Pubkey, rc *domain.RewardCenter) (pda.Signer, error) {
	s, err := pda.SignerSeeds{
		Program: programID,
		Seeds:   RewardCenterSeeds(rc.AuctionHouse),
		Bump:    rc.Bump,
	}.Sign()
	if err != nil {
		return pda.Signer{}, fmt.Errorf("reward center %s: %w", rc.Address, err)
	}
	if s.Key() != rc.Address {
		return pda.Signer{}, fmt.Errorf("reward center %s signs as %s: %w", rc.Address, s.Key(), domain.ErrAddressMismatch)
	}
	return s, nil
}
