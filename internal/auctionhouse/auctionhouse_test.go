package auctionhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reward-center/internal/domain"
	"reward-center/internal/metaplex"
	"reward-center/internal/pda"
	"reward-center/internal/storage"
	"reward-center/internal/storage/memory"
)

func key(b byte) pda.Pubkey {
	var pk pda.Pubkey
	pk[0] = b
	pk[31] = 0x17
	return pk
}

func ata(t *testing.T, owner, mint pda.Pubkey) pda.Pubkey {
	t.Helper()
	addr, _, err := pda.AssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	return addr
}

type world struct {
	t      *testing.T
	ledger *memory.Ledger
	prog   *Program
	ah     *domain.AuctionHouse
	signer pda.Signer

	authority    pda.Pubkey
	treasuryMint pda.Pubkey
	tokenMint    pda.Pubkey
	seller       pda.Pubkey
	buyer        pda.Pubkey
	creator      pda.Pubkey
	metadata     pda.Pubkey

	sellerToken  pda.Pubkey
	buyerPayment pda.Pubkey
}

func newWorld(t *testing.T, scopes domain.AuthorityScope) *world {
	t.Helper()

	w := &world{
		t:            t,
		ledger:       memory.NewLedger(),
		prog:         New(metaplex.NewValidator(nil)),
		authority:    key(2),
		treasuryMint: key(3),
		tokenMint:    key(4),
		seller:       key(5),
		buyer:        key(6),
		creator:      key(7),
	}
	w.sellerToken = ata(t, w.seller, w.tokenMint)
	w.buyerPayment = ata(t, w.buyer, w.treasuryMint)

	var err error
	w.metadata, _, err = metaplex.MetadataAddress(w.tokenMint)
	require.NoError(t, err)

	// The delegated signer is an address derived under some other program.
	delegateProgram := key(99)
	seeds := [][]byte{[]byte("reward_center"), {1}}
	_, bump, err := pda.FindProgramAddress(seeds, delegateProgram)
	require.NoError(t, err)
	w.signer, err = pda.SignerSeeds{Program: delegateProgram, Seeds: seeds, Bump: bump}.Sign()
	require.NoError(t, err)

	w.atomic(func(ctx context.Context, tx storage.Tx) error {
		w.ah, err = w.prog.CreateAuctionHouse(ctx, tx, CreateArgs{
			Creator:              key(1),
			Authority:            w.authority,
			TreasuryMint:         w.treasuryMint,
			SellerFeeBasisPoints: 200,
			RequiresAuctioneer:   true,
		})
		require.NoError(t, err)

		_, err = w.prog.DelegateAuctioneer(ctx, tx, w.ah.Address, w.authority, w.signer.Key(), scopes)
		require.NoError(t, err)

		require.NoError(t, tx.CreateMetadata(ctx, &domain.Metadata{
			Address:              w.metadata,
			Mint:                 w.tokenMint,
			UpdateAuthority:      w.creator,
			SellerFeeBasisPoints: 500,
			Creators:             []domain.Creator{{Address: w.creator, Verified: true, Share: 100}},
		}))
		require.NoError(t, tx.CreateTokenAccount(ctx, &domain.TokenAccount{Address: w.sellerToken, Mint: w.tokenMint, Owner: w.seller, Amount: 1}))
		return tx.CreateTokenAccount(ctx, &domain.TokenAccount{Address: w.buyerPayment, Mint: w.treasuryMint, Owner: w.buyer, Amount: 10_000})
	})
	return w
}

func (w *world) atomic(fn func(ctx context.Context, tx storage.Tx) error) {
	w.t.Helper()
	require.NoError(w.t, w.ledger.Atomic(context.Background(), fn))
}

func (w *world) try(fn func(ctx context.Context, tx storage.Tx) error) error {
	return w.ledger.Atomic(context.Background(), fn)
}

func (w *world) find(seeds [][]byte) (pda.Pubkey, uint8) {
	w.t.Helper()
	addr, bump, err := w.prog.Find(seeds)
	require.NoError(w.t, err)
	return addr, bump
}

func (w *world) balance(addr pda.Pubkey) uint64 {
	w.t.Helper()
	var amount uint64
	w.atomic(func(ctx context.Context, tx storage.Tx) error {
		acct, err := tx.TokenAccount(ctx, addr)
		if err != nil {
			return err
		}
		amount = acct.Amount
		return nil
	})
	return amount
}

func (w *world) sellArgs() SellArgs {
	sts, stsBump := w.find(SellerTradeStateSeeds(w.seller, w.ah.Address, w.sellerToken, w.treasuryMint, w.tokenMint, SentinelPrice, 1))
	fts, ftsBump := w.find(SellerTradeStateSeeds(w.seller, w.ah.Address, w.sellerToken, w.treasuryMint, w.tokenMint, FreePrice, 1))
	pas, pasBump := w.find(ProgramAsSignerSeeds())
	return SellArgs{
		Wallet:              w.seller,
		TokenAccount:        w.sellerToken,
		Metadata:            w.metadata,
		AuctionHouse:        w.ah.Address,
		SellerTradeState:    sts,
		FreeTradeState:      fts,
		ProgramAsSigner:     pas,
		TradeStateBump:      stsBump,
		FreeTradeStateBump:  ftsBump,
		ProgramAsSignerBump: pasBump,
		TokenSize:           1,
	}
}

func (w *world) depositArgs(amount uint64) DepositArgs {
	escrow, escrowBump := w.find(EscrowSeeds(w.ah.Address, w.buyer))
	return DepositArgs{
		Wallet:            w.buyer,
		PaymentAccount:    w.buyerPayment,
		TransferAuthority: w.buyer,
		AuctionHouse:      w.ah.Address,
		EscrowPayment:     escrow,
		EscrowBump:        escrowBump,
		Amount:            amount,
	}
}

func (w *world) publicBuyArgs(price uint64) PublicBuyArgs {
	escrow, escrowBump := w.find(EscrowSeeds(w.ah.Address, w.buyer))
	bts, btsBump := w.find(BuyerTradeStateSeeds(w.buyer, w.ah.Address, w.treasuryMint, w.tokenMint, price, 1))
	return PublicBuyArgs{
		Wallet:            w.buyer,
		PaymentAccount:    w.buyerPayment,
		TransferAuthority: w.buyer,
		TokenAccount:      w.sellerToken,
		Metadata:          w.metadata,
		AuctionHouse:      w.ah.Address,
		EscrowPayment:     escrow,
		BuyerTradeState:   bts,
		TradeStateBump:    btsBump,
		EscrowBump:        escrowBump,
		Price:             price,
		TokenSize:         1,
	}
}

func (w *world) executeArgs(price uint64) ExecuteSaleArgs {
	sell := w.sellArgs()
	buy := w.publicBuyArgs(price)
	return ExecuteSaleArgs{
		Buyer:                w.buyer,
		Seller:               w.seller,
		TokenAccount:         w.sellerToken,
		TokenMint:            w.tokenMint,
		Metadata:             w.metadata,
		TreasuryMint:         w.treasuryMint,
		AuctionHouse:         w.ah.Address,
		FeeAccount:           w.ah.FeeAccount,
		Treasury:             w.ah.Treasury,
		EscrowPayment:        buy.EscrowPayment,
		SellerPaymentReceipt: ata(w.t, w.seller, w.treasuryMint),
		BuyerReceiptAccount:  ata(w.t, w.buyer, w.tokenMint),
		BuyerTradeState:      buy.BuyerTradeState,
		SellerTradeState:     sell.SellerTradeState,
		FreeTradeState:       sell.FreeTradeState,
		ProgramAsSigner:      sell.ProgramAsSigner,
		EscrowBump:           buy.EscrowBump,
		FreeTradeStateBump:   sell.FreeTradeStateBump,
		ProgramAsSignerBump:  sell.ProgramAsSignerBump,
		Price:                price,
		TokenSize:            1,
		Remaining: []RemainingAccount{
			{Creator: w.creator, TokenAccount: ata(w.t, w.creator, w.treasuryMint)},
		},
	}
}

func (w *world) listAndBid(price uint64) {
	w.t.Helper()
	w.atomic(func(ctx context.Context, tx storage.Tx) error {
		if _, err := w.prog.Sell(ctx, tx, w.signer, w.sellArgs()); err != nil {
			return err
		}
		if err := w.prog.Deposit(ctx, tx, w.signer, w.depositArgs(price)); err != nil {
			return err
		}
		return w.prog.PublicBuy(ctx, tx, w.signer, w.publicBuyArgs(price))
	})
}

func TestExecuteSale_FullLifecycle(t *testing.T) {
	w := newWorld(t, domain.ScopeAll)
	w.listAndBid(1000)

	args := w.executeArgs(1000)
	var res *SaleResult
	w.atomic(func(ctx context.Context, tx storage.Tx) error {
		var err error
		res, err = w.prog.ExecuteSale(ctx, tx, w.signer, args)
		return err
	})

	assert.Equal(t, &SaleResult{Royalties: 50, MarketplaceFee: 20, SellerProceeds: 930}, res)
	assert.Equal(t, uint64(9000), w.balance(w.buyerPayment))
	assert.Equal(t, uint64(0), w.balance(args.EscrowPayment))
	assert.Equal(t, uint64(50), w.balance(args.Remaining[0].TokenAccount))
	assert.Equal(t, uint64(20), w.balance(w.ah.Treasury))
	assert.Equal(t, uint64(930), w.balance(args.SellerPaymentReceipt))
	assert.Equal(t, uint64(1), w.balance(args.BuyerReceiptAccount))
	assert.Equal(t, uint64(0), w.balance(w.sellerToken))

	w.atomic(func(ctx context.Context, tx storage.Tx) error {
		for _, addr := range []pda.Pubkey{args.BuyerTradeState, args.SellerTradeState, args.FreeTradeState} {
			_, err := tx.TradeState(ctx, addr)
			assert.ErrorIs(t, err, storage.ErrNotFound)
		}
		acct, err := tx.TokenAccount(ctx, w.sellerToken)
		require.NoError(t, err)
		assert.True(t, acct.Delegate.IsZero())
		return nil
	})
}

func TestDeposit_InsufficientFunds(t *testing.T) {
	w := newWorld(t, domain.ScopeAll)

	err := w.try(func(ctx context.Context, tx storage.Tx) error {
		return w.prog.Deposit(ctx, tx, w.signer, w.depositArgs(10_001))
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, uint64(10_000), w.balance(w.buyerPayment))
}

func TestDeposit_EscrowMismatch(t *testing.T) {
	w := newWorld(t, domain.ScopeAll)

	args := w.depositArgs(100)
	args.EscrowPayment = key(50)
	err := w.try(func(ctx context.Context, tx storage.Tx) error {
		return w.prog.Deposit(ctx, tx, w.signer, args)
	})
	assert.ErrorIs(t, err, domain.ErrAddressMismatch)
}

func TestPublicBuy_Conflict(t *testing.T) {
	w := newWorld(t, domain.ScopeAll)
	w.atomic(func(ctx context.Context, tx storage.Tx) error {
		return w.prog.PublicBuy(ctx, tx, w.signer, w.publicBuyArgs(500))
	})

	err := w.try(func(ctx context.Context, tx storage.Tx) error {
		return w.prog.PublicBuy(ctx, tx, w.signer, w.publicBuyArgs(500))
	})
	assert.ErrorIs(t, err, domain.ErrTradeStateConflict)
}

func TestPublicBuy_TopsUpEscrow(t *testing.T) {
	w := newWorld(t, domain.ScopeAll)
	args := w.publicBuyArgs(700)
	w.atomic(func(ctx context.Context, tx storage.Tx) error {
		if err := w.prog.Deposit(ctx, tx, w.signer, w.depositArgs(200)); err != nil {
			return err
		}
		return w.prog.PublicBuy(ctx, tx, w.signer, args)
	})
	assert.Equal(t, uint64(700), w.balance(args.EscrowPayment))
	assert.Equal(t, uint64(9300), w.balance(w.buyerPayment))
}

func TestExecuteSale_MissingSellerTradeState(t *testing.T) {
	w := newWorld(t, domain.ScopeAll)
	w.atomic(func(ctx context.Context, tx storage.Tx) error {
		if err := w.prog.Deposit(ctx, tx, w.signer, w.depositArgs(1000)); err != nil {
			return err
		}
		return w.prog.PublicBuy(ctx, tx, w.signer, w.publicBuyArgs(1000))
	})

	err := w.try(func(ctx context.Context, tx storage.Tx) error {
		_, err := w.prog.ExecuteSale(ctx, tx, w.signer, w.executeArgs(1000))
		return err
	})
	assert.ErrorIs(t, err, domain.ErrTradeStateConflict)
}

func TestExecuteSale_AccountSubstitution(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ExecuteSaleArgs)
	}{
		{"escrow", func(a *ExecuteSaleArgs) { a.EscrowPayment = key(60) }},
		{"treasury", func(a *ExecuteSaleArgs) { a.Treasury = key(61) }},
		{"fee account", func(a *ExecuteSaleArgs) { a.FeeAccount = key(62) }},
		{"free trade state", func(a *ExecuteSaleArgs) { a.FreeTradeState = key(63) }},
		{"program as signer bump", func(a *ExecuteSaleArgs) { a.ProgramAsSignerBump++ }},
		{"seller payment receipt", func(a *ExecuteSaleArgs) { a.SellerPaymentReceipt = key(64) }},
		{"creator", func(a *ExecuteSaleArgs) { a.Remaining[0].Creator = key(65) }},
		{"missing creator", func(a *ExecuteSaleArgs) { a.Remaining = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld(t, domain.ScopeAll)
			w.listAndBid(1000)

			args := w.executeArgs(1000)
			tt.mutate(&args)
			err := w.try(func(ctx context.Context, tx storage.Tx) error {
				_, err := w.prog.ExecuteSale(ctx, tx, w.signer, args)
				return err
			})
			assert.ErrorIs(t, err, domain.ErrAddressMismatch)

			assert.Equal(t, uint64(1000), w.balance(w.executeArgs(1000).EscrowPayment))
			assert.Equal(t, uint64(1), w.balance(w.sellerToken))
		})
	}
}

func TestAuthorize(t *testing.T) {
	t.Run("zero signer", func(t *testing.T) {
		w := newWorld(t, domain.ScopeAll)
		err := w.try(func(ctx context.Context, tx storage.Tx) error {
			return w.prog.Deposit(ctx, tx, pda.Signer{}, w.depositArgs(1))
		})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("missing scope", func(t *testing.T) {
		w := newWorld(t, domain.ScopeDeposit)
		err := w.try(func(ctx context.Context, tx storage.Tx) error {
			return w.prog.PublicBuy(ctx, tx, w.signer, w.publicBuyArgs(1))
		})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("not delegated", func(t *testing.T) {
		w := newWorld(t, domain.ScopeAll)
		seeds := [][]byte{[]byte("other")}
		_, bump, err := pda.FindProgramAddress(seeds, key(98))
		require.NoError(t, err)
		stranger, err := pda.SignerSeeds{Program: key(98), Seeds: seeds, Bump: bump}.Sign()
		require.NoError(t, err)

		err = w.try(func(ctx context.Context, tx storage.Tx) error {
			return w.prog.Deposit(ctx, tx, stranger, w.depositArgs(1))
		})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("delegation by non-authority", func(t *testing.T) {
		w := newWorld(t, domain.ScopeAll)
		err := w.try(func(ctx context.Context, tx storage.Tx) error {
			_, err := w.prog.DelegateAuctioneer(ctx, tx, w.ah.Address, key(40), key(41), domain.ScopeAll)
			return err
		})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}

func TestCancel_SellerTradeState(t *testing.T) {
	w := newWorld(t, domain.ScopeAll)
	sell := w.sellArgs()
	w.atomic(func(ctx context.Context, tx storage.Tx) error {
		_, err := w.prog.Sell(ctx, tx, w.signer, sell)
		return err
	})

	cancel := CancelArgs{
		Wallet:          w.seller,
		TokenAccount:    w.sellerToken,
		AuctionHouse:    w.ah.Address,
		TradeState:      sell.SellerTradeState,
		ProgramAsSigner: sell.ProgramAsSigner,
	}
	w.atomic(func(ctx context.Context, tx storage.Tx) error {
		return w.prog.Cancel(ctx, tx, w.signer, cancel)
	})

	w.atomic(func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.TradeState(ctx, sell.SellerTradeState)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		acct, err := tx.TokenAccount(ctx, w.sellerToken)
		require.NoError(t, err)
		assert.True(t, acct.Delegate.IsZero())
		assert.Zero(t, acct.DelegatedAmount)
		return nil
	})

	err := w.try(func(ctx context.Context, tx storage.Tx) error {
		return w.prog.Cancel(ctx, tx, w.signer, cancel)
	})
	assert.ErrorIs(t, err, domain.ErrTradeStateConflict)
}

func TestSell_Validation(t *testing.T) {
	t.Run("wrong owner", func(t *testing.T) {
		w := newWorld(t, domain.ScopeAll)
		args := w.sellArgs()
		args.Wallet = w.buyer
		err := w.try(func(ctx context.Context, tx storage.Tx) error {
			_, err := w.prog.Sell(ctx, tx, w.signer, args)
			return err
		})
		assert.ErrorIs(t, err, domain.ErrOwnerMismatch)
	})

	t.Run("invalid metadata", func(t *testing.T) {
		w := newWorld(t, domain.ScopeAll)
		args := w.sellArgs()
		args.Metadata = key(70)
		err := w.try(func(ctx context.Context, tx storage.Tx) error {
			_, err := w.prog.Sell(ctx, tx, w.signer, args)
			return err
		})
		assert.ErrorIs(t, err, domain.ErrInvalidMetadata)
	})

	t.Run("duplicate", func(t *testing.T) {
		w := newWorld(t, domain.ScopeAll)
		w.atomic(func(ctx context.Context, tx storage.Tx) error {
			_, err := w.prog.Sell(ctx, tx, w.signer, w.sellArgs())
			return err
		})
		err := w.try(func(ctx context.Context, tx storage.Tx) error {
			_, err := w.prog.Sell(ctx, tx, w.signer, w.sellArgs())
			return err
		})
		assert.ErrorIs(t, err, domain.ErrTradeStateConflict)
	})
}

func TestWithdrawFromTreasury(t *testing.T) {
	w := newWorld(t, domain.ScopeAll)
	w.listAndBid(1000)
	w.atomic(func(ctx context.Context, tx storage.Tx) error {
		_, err := w.prog.ExecuteSale(ctx, tx, w.signer, w.executeArgs(1000))
		return err
	})

	dst := ata(t, w.authority, w.treasuryMint)
	w.atomic(func(ctx context.Context, tx storage.Tx) error {
		return tx.CreateTokenAccount(ctx, &domain.TokenAccount{Address: dst, Mint: w.treasuryMint, Owner: w.authority})
	})

	err := w.try(func(ctx context.Context, tx storage.Tx) error {
		return w.prog.WithdrawFromTreasury(ctx, tx, w.ah.Address, w.seller, dst, 20)
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	w.atomic(func(ctx context.Context, tx storage.Tx) error {
		return w.prog.WithdrawFromTreasury(ctx, tx, w.ah.Address, w.authority, dst, 20)
	})
	assert.Equal(t, uint64(20), w.balance(dst))
	assert.Equal(t, uint64(0), w.balance(w.ah.Treasury))
}

func TestFeeMath(t *testing.T) {
	assert.Equal(t, uint64(20), basisPoints(1000, 200))
	assert.Equal(t, uint64(1000), basisPoints(1000, 65535), "bps capped at 100%")
	assert.Equal(t, uint64(0), basisPoints(0, 500))
	assert.Equal(t, uint64(18446744073709551615), basisPoints(18446744073709551615, 10000))
	assert.Equal(t, uint64(33), percentOf(100, 33))
	assert.Equal(t, uint64(100), percentOf(100, 250))
}
