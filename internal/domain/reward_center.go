package domain

import (
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"

	"reward-center/internal/pda"
)

// BasisPointsDenominator is 100% expressed in basis points.
const BasisPointsDenominator = 10_000

// PayoutOperation selects how the listing price scales into the total reward.
type PayoutOperation uint8

const (
	PayoutMultiple PayoutOperation = iota // total = price * numeral
	PayoutDivide                          // total = price / numeral
)

// String returns the operation name.
func (o PayoutOperation) String() string {
	switch o {
	case PayoutMultiple:
		return "multiple"
	case PayoutDivide:
		return "divide"
	default:
		return fmt.Sprintf("PayoutOperation(%d)", uint8(o))
	}
}

// MarshalText encodes the operation by name.
func (o PayoutOperation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an operation name.
func (o *PayoutOperation) UnmarshalText(text []byte) error {
	op, err := ParsePayoutOperation(string(text))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// ParsePayoutOperation is the inverse of String.
func ParsePayoutOperation(s string) (PayoutOperation, error) {
	switch s {
	case "multiple":
		return PayoutMultiple, nil
	case "divide":
		return PayoutDivide, nil
	default:
		return 0, fmt.Errorf("%w: unknown payout operation %q", ErrInvalidRewardRules, s)
	}
}

// RewardRules configure how a trade price becomes buyer and seller rewards.
type RewardRules struct {
	SellerRewardPayoutBasisPoints uint16          `json:"seller_reward_payout_basis_points"` // seller share of the total reward
	MathematicalOperand           PayoutOperation `json:"mathematical_operand"`              // how price scales into the total
	PayoutNumeral                 uint16          `json:"payout_numeral"`                    // multiplier or divisor
}

// Validate rejects rules that could not produce a payout.
func (r RewardRules) Validate() error {
	if r.SellerRewardPayoutBasisPoints > BasisPointsDenominator {
		return fmt.Errorf("%w: seller share %d bps exceeds %d", ErrInvalidRewardRules, r.SellerRewardPayoutBasisPoints, BasisPointsDenominator)
	}
	switch r.MathematicalOperand {
	case PayoutMultiple:
	case PayoutDivide:
		if r.PayoutNumeral == 0 {
			return fmt.Errorf("%w: divide by zero payout numeral", ErrInvalidRewardRules)
		}
	default:
		return fmt.Errorf("%w: unknown operand %d", ErrInvalidRewardRules, r.MathematicalOperand)
	}
	return nil
}

// Payouts splits the reward for a trade at price into (seller, buyer).
// The total saturates at MaxUint64; seller + buyer always equals the total.
// Rules must have passed Validate.
func (r RewardRules) Payouts(price uint64) (seller, buyer uint64) {
	var total sdkmath.Uint
	switch r.MathematicalOperand {
	case PayoutDivide:
		if r.PayoutNumeral == 0 {
			return 0, 0
		}
		total = sdkmath.NewUint(price).QuoUint64(uint64(r.PayoutNumeral))
	default:
		total = sdkmath.NewUint(price).MulUint64(uint64(r.PayoutNumeral))
	}

	maxTotal := sdkmath.NewUint(math.MaxUint64)
	if total.GT(maxTotal) {
		total = maxTotal
	}

	share := uint64(r.SellerRewardPayoutBasisPoints)
	if share > BasisPointsDenominator {
		share = BasisPointsDenominator
	}

	sellerAmt := total.MulUint64(share).QuoUint64(BasisPointsDenominator)
	buyerAmt := total.Sub(sellerAmt)
	return sellerAmt.Uint64(), buyerAmt.Uint64()
}

// RewardCenter wraps an auction house with a token-reward incentive and
// acts as its delegated auctioneer.
// Corresponds to reward_centers table.
type RewardCenter struct {
	Address      pda.Pubkey  `json:"address"` // derived: ["reward_center", auction_house]
	AuctionHouse pda.Pubkey  `json:"auction_house"`
	TokenMint    pda.Pubkey  `json:"token_mint"` // reward token
	Rules        RewardRules `json:"rules"`
	Bump         uint8       `json:"bump"`
}
