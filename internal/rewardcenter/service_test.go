package rewardcenter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reward-center/internal/auctionhouse"
	"reward-center/internal/domain"
	"reward-center/internal/fixtures"
	"reward-center/internal/metaplex"
	"reward-center/internal/pda"
	"reward-center/internal/rewardcenter"
	"reward-center/internal/storage"
	"reward-center/internal/storage/memory"
	"reward-center/internal/token"
)

type env struct {
	ledger *memory.Ledger
	ah     *auctionhouse.Program
	svc    *rewardcenter.Service
	market *fixtures.Marketplace
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ledger := memory.NewLedger()
	ah := auctionhouse.New(metaplex.NewValidator(nil))
	svc := rewardcenter.NewService(ledger, ah)

	market, err := fixtures.LoadMarketplace(context.Background(), ledger, ah, svc, fixtures.DefaultOptions())
	require.NoError(t, err)
	return &env{ledger: ledger, ah: ah, svc: svc, market: market}
}

func (e *env) account(t *testing.T, addr pda.Pubkey) *domain.TokenAccount {
	t.Helper()
	var acct *domain.TokenAccount
	require.NoError(t, e.ledger.Atomic(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		var err error
		acct, err = tx.TokenAccount(ctx, addr)
		return err
	}))
	return acct
}

func TestCreateRewardCenter(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rc := e.market.RewardCenter

	want, bump, err := pda.FindProgramAddress(rewardcenter.RewardCenterSeeds(e.market.AuctionHouse.Address), rewardcenter.DefaultProgramID)
	require.NoError(t, err)
	assert.Equal(t, want, rc.Address)
	assert.Equal(t, bump, rc.Bump)
	assert.Equal(t, e.market.RewardMint, rc.TokenMint)

	signer, err := rewardcenter.Signer(rewardcenter.DefaultProgramID, rc)
	require.NoError(t, err)
	assert.Equal(t, rc.Address, signer.Key())

	auctioneerAddr, _, err := e.ah.Find(auctionhouse.AuctioneerSeeds(rc.AuctionHouse, rc.Address))
	require.NoError(t, err)
	require.NoError(t, e.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		a, err := tx.Auctioneer(ctx, auctioneerAddr)
		require.NoError(t, err)
		assert.Equal(t, rc.Address, a.Authority)
		assert.Equal(t, domain.ScopeAll, a.Scopes)
		return nil
	}))

	balance, err := e.svc.Balance(ctx, rc.Address)
	require.NoError(t, err)
	assert.Equal(t, fixtures.DefaultOptions().TreasuryFunds, balance)

	_, err = e.svc.CreateRewardCenter(ctx, rewardcenter.CreateParams{
		AuctionHouse: rc.AuctionHouse,
		Wallet:       e.market.Authority,
		TokenMint:    rc.TokenMint,
		Rules:        rc.Rules,
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestCreateRewardCenter_Rejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var other *domain.AuctionHouse
	require.NoError(t, e.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		other, err = e.ah.CreateAuctionHouse(ctx, tx, auctionhouse.CreateArgs{
			Creator:            fixtures.Key("other-creator"),
			Authority:          e.market.Authority,
			TreasuryMint:       e.market.TreasuryMint,
			RequiresAuctioneer: true,
		})
		return err
	}))

	tests := []struct {
		name    string
		params  rewardcenter.CreateParams
		wantErr error
	}{
		{
			name: "not the authority",
			params: rewardcenter.CreateParams{
				AuctionHouse: other.Address,
				Wallet:       e.market.Seller,
				TokenMint:    e.market.RewardMint,
				Rules:        fixtures.DefaultOptions().Rules,
			},
			wantErr: domain.ErrUnauthorized,
		},
		{
			name: "divide by zero",
			params: rewardcenter.CreateParams{
				AuctionHouse: other.Address,
				Wallet:       e.market.Authority,
				TokenMint:    e.market.RewardMint,
				Rules:        domain.RewardRules{MathematicalOperand: domain.PayoutDivide},
			},
			wantErr: domain.ErrInvalidRewardRules,
		},
		{
			name: "unknown auction house",
			params: rewardcenter.CreateParams{
				AuctionHouse: fixtures.Key("nowhere"),
				Wallet:       e.market.Authority,
				TokenMint:    e.market.RewardMint,
				Rules:        fixtures.DefaultOptions().Rules,
			},
			wantErr: storage.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.CreateRewardCenter(ctx, tt.params)
			require.ErrorIs(t, err, tt.wantErr)

			addr, _, err := pda.FindProgramAddress(rewardcenter.RewardCenterSeeds(tt.params.AuctionHouse), rewardcenter.DefaultProgramID)
			require.NoError(t, err)
			_, err = e.svc.RewardCenter(ctx, addr)
			assert.ErrorIs(t, err, storage.ErrNotFound)
		})
	}
}

func TestEditRewardCenter(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rules := domain.RewardRules{
		SellerRewardPayoutBasisPoints: 2500,
		MathematicalOperand:           domain.PayoutMultiple,
		PayoutNumeral:                 2,
	}

	_, err := e.svc.EditRewardCenter(ctx, e.market.RewardCenter.Address, e.market.Seller, rules)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = e.svc.EditRewardCenter(ctx, e.market.RewardCenter.Address, e.market.Authority, domain.RewardRules{SellerRewardPayoutBasisPoints: 10_001})
	require.ErrorIs(t, err, domain.ErrInvalidRewardRules)

	rc, err := e.svc.EditRewardCenter(ctx, e.market.RewardCenter.Address, e.market.Authority, rules)
	require.NoError(t, err)
	assert.Equal(t, rules, rc.Rules)

	stored, err := e.svc.RewardCenter(ctx, rc.Address)
	require.NoError(t, err)
	assert.Equal(t, rules, stored.Rules)
}

func TestFundAndWithdraw(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rc := e.market.RewardCenter.Address
	funds := fixtures.DefaultOptions().TreasuryFunds

	dst, _, err := pda.AssociatedTokenAddress(e.market.Authority, e.market.RewardMint)
	require.NoError(t, err)
	require.NoError(t, e.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := token.EnsureAssociatedAccount(ctx, tx, e.market.Authority, e.market.RewardMint)
		return err
	}))

	err = e.svc.Withdraw(ctx, rc, e.market.Seller, dst, 10)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	err = e.svc.Withdraw(ctx, rc, e.market.Authority, dst, funds+1)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	require.NoError(t, e.svc.Withdraw(ctx, rc, e.market.Authority, dst, 400))
	balance, err := e.svc.Balance(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, funds-400, balance)
	assert.Equal(t, uint64(400), e.account(t, dst).Amount)

	// Anyone may fund from an account they own.
	require.NoError(t, e.svc.Fund(ctx, rc, dst, e.market.Authority, 100))
	balance, err = e.svc.Balance(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, funds-300, balance)

	err = e.svc.Fund(ctx, rc, dst, e.market.Seller, 1)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestListingLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	listing, err := e.market.List(ctx, e.svc, 1000)
	require.NoError(t, err)

	want, _, err := pda.FindProgramAddress(
		rewardcenter.ListingSeeds(e.market.Seller, e.market.Metadata, e.market.RewardCenter.Address),
		rewardcenter.DefaultProgramID,
	)
	require.NoError(t, err)
	assert.Equal(t, want, listing.Address)
	assert.Equal(t, uint64(1000), listing.Price)

	pas, _, err := e.ah.Find(auctionhouse.ProgramAsSignerSeeds())
	require.NoError(t, err)
	asset := e.account(t, e.market.SellerTokenAccount)
	assert.Equal(t, pas, asset.Delegate)
	assert.Equal(t, uint64(1), asset.DelegatedAmount)

	_, err = e.market.List(ctx, e.svc, 1000)
	require.ErrorIs(t, err, domain.ErrTradeStateConflict)

	_, err = e.svc.UpdateListing(ctx, listing.Address, e.market.Buyer, 1)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	updated, err := e.svc.UpdateListing(ctx, listing.Address, e.market.Seller, 2000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), updated.Price)

	require.ErrorIs(t, e.svc.CancelListing(ctx, listing.Address, e.market.Buyer), domain.ErrUnauthorized)
	require.NoError(t, e.svc.CancelListing(ctx, listing.Address, e.market.Seller))

	_, err = e.svc.Listing(ctx, listing.Address)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	asset = e.account(t, e.market.SellerTokenAccount)
	assert.True(t, asset.Delegate.IsZero())

	require.ErrorIs(t, e.svc.CancelListing(ctx, listing.Address, e.market.Seller), domain.ErrTradeStateConflict)

	_, err = e.market.List(ctx, e.svc, 500)
	assert.NoError(t, err)
}

func TestCreateListing_NotOwner(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.CreateListing(context.Background(), rewardcenter.CreateListingParams{
		RewardCenter: e.market.RewardCenter.Address,
		Seller:       e.market.Buyer,
		TokenAccount: e.market.SellerTokenAccount,
		Metadata:     e.market.Metadata,
		Price:        1000,
		TokenSize:    1,
	})
	require.ErrorIs(t, err, domain.ErrOwnerMismatch)
	assert.True(t, e.account(t, e.market.SellerTokenAccount).Delegate.IsZero())
}

func TestWithdrawAuctionHouse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ah := e.market.AuctionHouse

	var dst pda.Pubkey
	require.NoError(t, e.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		treasury, err := tx.TokenAccount(ctx, ah.Treasury)
		if err != nil {
			return err
		}
		treasury.Amount = 100
		if err := tx.UpdateTokenAccount(ctx, treasury); err != nil {
			return err
		}
		acct, err := token.EnsureAssociatedAccount(ctx, tx, e.market.Authority, ah.TreasuryMint)
		if err != nil {
			return err
		}
		dst = acct.Address
		return nil
	}))

	require.ErrorIs(t, e.svc.WithdrawAuctionHouse(ctx, ah.Address, e.market.Seller, dst, 40), domain.ErrUnauthorized)
	require.NoError(t, e.svc.WithdrawAuctionHouse(ctx, ah.Address, e.market.Authority, dst, 40))

	assert.Equal(t, uint64(60), e.account(t, ah.Treasury).Amount)
	assert.Equal(t, uint64(40), e.account(t, dst).Amount)
}
