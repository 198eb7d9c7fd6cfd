package settlement

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"reward-center/internal/domain"
	"reward-center/internal/observability"
	"reward-center/internal/pda"
	"reward-center/internal/storage"
	"reward-center/internal/token"
)

// payout is one side of a reward disbursement.
type payout struct {
	amount uint64
	paid   bool
}

type disbursement struct {
	buyer  payout
	seller payout
}

// disburse pays the buyer reward, then the seller reward, out of the
// reward treasury. Each payout is skipped in full when it is zero or the
// treasury cannot cover it; a skip never fails the settlement. The
// treasury balance is re-read before the seller payout.
func (e *Engine) disburse(ctx context.Context, tx storage.TokenAccountTx, signer pda.Signer, rc *domain.RewardCenter, price uint64, treasury, buyerDst, sellerDst pda.Pubkey) (disbursement, error) {
	sellerAmt, buyerAmt := rc.Rules.Payouts(price)

	var d disbursement
	var err error
	if d.buyer, err = e.pay(ctx, tx, signer, "buyer", treasury, buyerDst, buyerAmt); err != nil {
		return d, err
	}
	if d.seller, err = e.pay(ctx, tx, signer, "seller", treasury, sellerDst, sellerAmt); err != nil {
		return d, err
	}
	return d, nil
}

func (e *Engine) pay(ctx context.Context, tx storage.TokenAccountTx, signer pda.Signer, side string, treasury, dst pda.Pubkey, amount uint64) (payout, error) {
	p := payout{amount: amount}

	balance, err := token.Balance(ctx, tx, treasury)
	if err != nil {
		return p, fmt.Errorf("reward treasury: %w", err)
	}
	if amount == 0 || balance < amount {
		e.logger.Debug("reward payout skipped",
			zap.String("side", side),
			zap.Uint64("amount", amount),
			zap.Uint64("treasury_balance", balance),
		)
		return p, nil
	}

	if err := token.Transfer(ctx, tx, treasury, dst, signer.Key(), amount); err != nil {
		return p, fmt.Errorf("pay %s reward: %w", side, err)
	}
	p.paid = true
	return p, nil
}

// recordPayouts counts the payout decisions of a committed settlement.
func recordPayouts(r *domain.Receipt) {
	sides := []struct {
		side   string
		amount uint64
		paid   bool
	}{
		{"buyer", r.BuyerReward, r.BuyerRewardPaid},
		{"seller", r.SellerReward, r.SellerRewardPaid},
	}
	for _, s := range sides {
		status := "skipped"
		if s.paid {
			status = "paid"
		}
		observability.RecordRewardPayout(s.side, status, s.amount)
	}
}
