// Package settlement executes a reward-center trade: the buyer's deposit,
// public bid and the auction house sale, followed by the buyer and seller
// reward payouts, as one atomic ledger unit.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reward-center/internal/auctionhouse"
	"reward-center/internal/domain"
	"reward-center/internal/metaplex"
	"reward-center/internal/observability"
	"reward-center/internal/pda"
	"reward-center/internal/rewardcenter"
	"reward-center/internal/storage"
)

// Publisher receives receipts of committed settlements.
type Publisher interface {
	Publish(r *domain.Receipt)
}

// Engine settles buy-listing requests against a ledger.
type Engine struct {
	ledger    storage.Ledger
	ah        *auctionhouse.Program
	metadata  *metaplex.Validator
	programID pda.Pubkey
	receipts  storage.ReceiptStore
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithProgramID sets the reward center program id. Defaults to
// rewardcenter.DefaultProgramID.
func WithProgramID(id pda.Pubkey) Option {
	return func(e *Engine) {
		e.programID = id
	}
}

// WithReceiptStore persists a receipt for every committed settlement.
func WithReceiptStore(store storage.ReceiptStore) Option {
	return func(e *Engine) {
		e.receipts = store
	}
}

// WithPublisher forwards receipts of committed settlements to p.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock sets the time source for receipt timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an Engine running sales through ah.
func NewEngine(ledger storage.Ledger, ah *auctionhouse.Program, opts ...Option) *Engine {
	e := &Engine{
		ledger:    ledger,
		ah:        ah,
		metadata:  ah.Metadata(),
		programID: rewardcenter.DefaultProgramID,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuyListing settles req. Either every effect is applied (escrow deposit,
// sale with royalties and marketplace fee, asset delivery, trade-state and
// listing closure, reward payouts) or none is. Failures wrap one of the
// domain error kinds; a listing that is already settled fails with
// domain.ErrTradeStateConflict. req must carry an unexpired signature of
// the transfer authority, else domain.ErrUnauthorized.
func (e *Engine) BuyListing(ctx context.Context, req BuyListingRequest) (*domain.Receipt, error) {
	start := time.Now()

	var receipt *domain.Receipt
	err := req.authorize(e.now())
	if err == nil {
		// Remote metadata is fetched before the unit takes row locks.
		if perr := e.metadata.Prefetch(ctx, req.Metadata); perr != nil {
			e.logger.Debug("metadata prefetch", zap.Stringer("metadata", req.Metadata), zap.Error(perr))
		}
		err = e.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
			var err error
			receipt, err = e.settle(ctx, tx, req)
			return err
		})
	}
	observability.RecordSettlement(outcome(err), time.Since(start).Seconds())
	if err != nil {
		e.logger.Warn("settlement rejected",
			zap.Stringer("listing", req.Listing),
			zap.Stringer("buyer", req.Buyer),
			zap.Error(err),
		)
		return nil, err
	}
	observability.RecordSettlementCommitted(receipt.SettledAt / 1000)
	recordPayouts(receipt)

	e.logger.Info("listing settled",
		zap.String("receipt", receipt.ID),
		zap.Stringer("listing", receipt.Listing),
		zap.Uint64("price", receipt.Price),
		zap.Uint64("buyer_reward", receipt.BuyerReward),
		zap.Bool("buyer_reward_paid", receipt.BuyerRewardPaid),
		zap.Uint64("seller_reward", receipt.SellerReward),
		zap.Bool("seller_reward_paid", receipt.SellerRewardPaid),
	)
	e.emit(ctx, receipt)
	return receipt, nil
}

// settle runs inside the atomic unit. All checks happen before the first
// mutation.
func (e *Engine) settle(ctx context.Context, tx storage.Tx, req BuyListingRequest) (*domain.Receipt, error) {
	st, err := e.checkPreconditions(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	price, size := st.listing.Price, st.listing.TokenSize

	err = e.ah.Deposit(ctx, tx, st.signer, auctionhouse.DepositArgs{
		Wallet:            req.Buyer,
		PaymentAccount:    req.PaymentAccount,
		TransferAuthority: req.TransferAuthority,
		AuctionHouse:      req.AuctionHouse,
		EscrowPayment:     req.EscrowPaymentAccount,
		EscrowBump:        req.Params.EscrowPaymentBump,
		Amount:            price,
	})
	if err != nil {
		return nil, err
	}

	err = e.ah.PublicBuy(ctx, tx, st.signer, auctionhouse.PublicBuyArgs{
		Wallet:            req.Buyer,
		PaymentAccount:    req.PaymentAccount,
		TransferAuthority: req.TransferAuthority,
		TokenAccount:      req.TokenAccount,
		Metadata:          req.Metadata,
		AuctionHouse:      req.AuctionHouse,
		EscrowPayment:     req.EscrowPaymentAccount,
		BuyerTradeState:   req.BuyerTradeState,
		TradeStateBump:    req.Params.BuyerTradeStateBump,
		EscrowBump:        req.Params.EscrowPaymentBump,
		Price:             price,
		TokenSize:         size,
	})
	if err != nil {
		return nil, err
	}

	sale, err := e.ah.ExecuteSale(ctx, tx, st.signer, auctionhouse.ExecuteSaleArgs{
		Buyer:                req.Buyer,
		Seller:               req.Seller,
		TokenAccount:         req.TokenAccount,
		TokenMint:            req.TokenMint,
		Metadata:             req.Metadata,
		TreasuryMint:         req.TreasuryMint,
		AuctionHouse:         req.AuctionHouse,
		FeeAccount:           req.AuctionHouseFeeAccount,
		Treasury:             req.AuctionHouseTreasury,
		EscrowPayment:        req.EscrowPaymentAccount,
		SellerPaymentReceipt: req.SellerPaymentReceiptAccount,
		BuyerReceiptAccount:  req.BuyerReceiptTokenAccount,
		BuyerTradeState:      req.BuyerTradeState,
		SellerTradeState:     req.SellerTradeState,
		FreeTradeState:       req.FreeSellerTradeState,
		ProgramAsSigner:      req.ProgramAsSigner,
		EscrowBump:           req.Params.EscrowPaymentBump,
		FreeTradeStateBump:   req.Params.FreeTradeStateBump,
		ProgramAsSignerBump:  req.Params.ProgramAsSignerBump,
		Price:                price,
		TokenSize:            size,
		Remaining:            req.Remaining,
	})
	if err != nil {
		return nil, err
	}

	d, err := e.disburse(ctx, tx, st.signer, st.rc, price, req.RewardCenterRewardTokenAccount, req.BuyerRewardTokenAccount, req.SellerRewardTokenAccount)
	if err != nil {
		return nil, err
	}

	if err := tx.DeleteListing(ctx, st.listing.Address); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("listing %s already closed: %w", st.listing.Address, domain.ErrTradeStateConflict)
		}
		return nil, fmt.Errorf("close listing %s: %w", st.listing.Address, err)
	}

	return &domain.Receipt{
		ID:               uuid.NewString(),
		Listing:          st.listing.Address,
		RewardCenter:     st.rc.Address,
		AuctionHouse:     st.ah.Address,
		Buyer:            req.Buyer,
		Seller:           req.Seller,
		TokenMint:        req.TokenMint,
		TreasuryMint:     st.ah.TreasuryMint,
		Price:            price,
		TokenSize:        size,
		MarketplaceFee:   sale.MarketplaceFee,
		Royalties:        sale.Royalties,
		BuyerReward:      d.buyer.amount,
		SellerReward:     d.seller.amount,
		BuyerRewardPaid:  d.buyer.paid,
		SellerRewardPaid: d.seller.paid,
		SettledAt:        e.now().UnixMilli(),
	}, nil
}

// emit persists and publishes a committed receipt. The settlement is final
// at this point, so failures are logged and counted only.
func (e *Engine) emit(ctx context.Context, r *domain.Receipt) {
	if e.receipts != nil {
		if err := e.receipts.Insert(ctx, r); err != nil {
			observability.RecordReceiptError()
			e.logger.Error("persist receipt",
				zap.String("receipt", r.ID),
				zap.Stringer("listing", r.Listing),
				zap.Error(err),
			)
		}
	}
	if e.publisher != nil {
		e.publisher.Publish(r)
		observability.RecordReceiptPublished()
	}
}

// outcome labels a settlement result for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrAddressMismatch):
		return "address_mismatch"
	case errors.Is(err, domain.ErrMintMismatch):
		return "mint_mismatch"
	case errors.Is(err, domain.ErrOwnerMismatch):
		return "owner_mismatch"
	case errors.Is(err, domain.ErrInvalidMetadata):
		return "invalid_metadata"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrTradeStateConflict):
		return "trade_state_conflict"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	default:
		return "error"
	}
}
