package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"reward-center/internal/domain"
	"reward-center/internal/observability"
	"reward-center/internal/pda"
	"reward-center/internal/storage"
)

// Ledger implements storage.Ledger on PostgreSQL. Each atomic unit is one
// database transaction; rows read through the Tx are locked FOR UPDATE
// until it commits or rolls back.
type Ledger struct {
	pool *Pool
}

// NewLedger creates a new Ledger.
func NewLedger(pool *Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Compile-time interface check.
var _ storage.Ledger = (*Ledger)(nil)

// Atomic runs fn inside a transaction and commits it if fn returns nil.
func (l *Ledger) Atomic(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "atomic", time.Since(start).Seconds(), err)
	}()

	pgTx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgTx.Rollback(ctx)

	if err := fn(ctx, &ledgerTx{tx: pgTx}); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return translate("commit tx", err)
	}
	return nil
}

type ledgerTx struct {
	tx pgx.Tx
}

var _ storage.Tx = (*ledgerTx)(nil)

// u64 renders an amount for a NUMERIC(20,0) parameter.
func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseU64(s, column string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", column, err)
	}
	return v, nil
}

// exec runs a write and maps driver errors to storage sentinels.
func (t *ledgerTx) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return translate(op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- auction houses ---

func (t *ledgerTx) AuctionHouse(ctx context.Context, addr pda.Pubkey) (*domain.AuctionHouse, error) {
	query := `
		SELECT address, creator, authority, treasury_mint, fee_account, treasury,
		       bump, fee_payer_bump, treasury_bump, seller_fee_basis_points, has_auctioneer
		FROM auction_houses
		WHERE address = $1
		FOR UPDATE
	`

	var ah domain.AuctionHouse
	var bump, feePayerBump, treasuryBump int16
	var sellerFee int32
	err := t.tx.QueryRow(ctx, query, addr).Scan(
		&ah.Address, &ah.Creator, &ah.Authority, &ah.TreasuryMint, &ah.FeeAccount, &ah.Treasury,
		&bump, &feePayerBump, &treasuryBump, &sellerFee, &ah.HasAuctioneer,
	)
	if err != nil {
		return nil, translate("get auction house", err)
	}
	ah.Bump = uint8(bump)
	ah.FeePayerBump = uint8(feePayerBump)
	ah.TreasuryBump = uint8(treasuryBump)
	ah.SellerFeeBasisPoints = uint16(sellerFee)
	return &ah, nil
}

func (t *ledgerTx) CreateAuctionHouse(ctx context.Context, ah *domain.AuctionHouse) error {
	if ah == nil {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO auction_houses (
			address, creator, authority, treasury_mint, fee_account, treasury,
			bump, fee_payer_bump, treasury_bump, seller_fee_basis_points, has_auctioneer
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	return t.exec(ctx, "insert auction house", query,
		ah.Address, ah.Creator, ah.Authority, ah.TreasuryMint, ah.FeeAccount, ah.Treasury,
		int16(ah.Bump), int16(ah.FeePayerBump), int16(ah.TreasuryBump), int32(ah.SellerFeeBasisPoints), ah.HasAuctioneer,
	)
}

func (t *ledgerTx) Auctioneer(ctx context.Context, addr pda.Pubkey) (*domain.Auctioneer, error) {
	query := `
		SELECT address, auction_house, authority, scopes, bump
		FROM auctioneers
		WHERE address = $1
		FOR UPDATE
	`

	var a domain.Auctioneer
	var scopes int32
	var bump int16
	err := t.tx.QueryRow(ctx, query, addr).Scan(&a.Address, &a.AuctionHouse, &a.Authority, &scopes, &bump)
	if err != nil {
		return nil, translate("get auctioneer", err)
	}
	a.Scopes = domain.AuthorityScope(scopes)
	a.Bump = uint8(bump)
	return &a, nil
}

func (t *ledgerTx) CreateAuctioneer(ctx context.Context, a *domain.Auctioneer) error {
	if a == nil {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO auctioneers (address, auction_house, authority, scopes, bump)
		VALUES ($1, $2, $3, $4, $5)
	`
	return t.exec(ctx, "insert auctioneer", query,
		a.Address, a.AuctionHouse, a.Authority, int32(a.Scopes), int16(a.Bump),
	)
}

// --- reward centers ---

func (t *ledgerTx) RewardCenter(ctx context.Context, addr pda.Pubkey) (*domain.RewardCenter, error) {
	query := `
		SELECT address, auction_house, token_mint,
		       seller_reward_payout_basis_points, payout_operation, payout_numeral, bump
		FROM reward_centers
		WHERE address = $1
		FOR UPDATE
	`

	var rc domain.RewardCenter
	var sellerBps, numeral int32
	var operation string
	var bump int16
	err := t.tx.QueryRow(ctx, query, addr).Scan(
		&rc.Address, &rc.AuctionHouse, &rc.TokenMint, &sellerBps, &operation, &numeral, &bump,
	)
	if err != nil {
		return nil, translate("get reward center", err)
	}

	op, err := domain.ParsePayoutOperation(operation)
	if err != nil {
		return nil, err
	}
	rc.Rules = domain.RewardRules{
		SellerRewardPayoutBasisPoints: uint16(sellerBps),
		MathematicalOperand:           op,
		PayoutNumeral:                 uint16(numeral),
	}
	rc.Bump = uint8(bump)
	return &rc, nil
}

func (t *ledgerTx) CreateRewardCenter(ctx context.Context, rc *domain.RewardCenter) error {
	if rc == nil {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO reward_centers (
			address, auction_house, token_mint,
			seller_reward_payout_basis_points, payout_operation, payout_numeral, bump
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	return t.exec(ctx, "insert reward center", query,
		rc.Address, rc.AuctionHouse, rc.TokenMint,
		int32(rc.Rules.SellerRewardPayoutBasisPoints), rc.Rules.MathematicalOperand.String(),
		int32(rc.Rules.PayoutNumeral), int16(rc.Bump),
	)
}

func (t *ledgerTx) UpdateRewardCenter(ctx context.Context, rc *domain.RewardCenter) error {
	if rc == nil {
		return storage.ErrInvalidInput
	}
	query := `
		UPDATE reward_centers
		SET seller_reward_payout_basis_points = $2, payout_operation = $3, payout_numeral = $4
		WHERE address = $1
	`
	return t.exec(ctx, "update reward center", query,
		rc.Address, int32(rc.Rules.SellerRewardPayoutBasisPoints),
		rc.Rules.MathematicalOperand.String(), int32(rc.Rules.PayoutNumeral),
	)
}

// --- listings ---

func (t *ledgerTx) Listing(ctx context.Context, addr pda.Pubkey) (*domain.Listing, error) {
	query := `
		SELECT address, reward_center, seller, metadata, token_account,
		       price::text, token_size::text, bump, created_at
		FROM listings
		WHERE address = $1
		FOR UPDATE
	`

	var l domain.Listing
	var price, size string
	var bump int16
	err := t.tx.QueryRow(ctx, query, addr).Scan(
		&l.Address, &l.RewardCenter, &l.Seller, &l.Metadata, &l.TokenAccount,
		&price, &size, &bump, &l.CreatedAt,
	)
	if err != nil {
		return nil, translate("get listing", err)
	}
	if l.Price, err = parseU64(price, "price"); err != nil {
		return nil, err
	}
	if l.TokenSize, err = parseU64(size, "token_size"); err != nil {
		return nil, err
	}
	l.Bump = uint8(bump)
	return &l, nil
}

func (t *ledgerTx) CreateListing(ctx context.Context, l *domain.Listing) error {
	if l == nil {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO listings (
			address, reward_center, seller, metadata, token_account,
			price, token_size, bump, created_at
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9)
	`
	return t.exec(ctx, "insert listing", query,
		l.Address, l.RewardCenter, l.Seller, l.Metadata, l.TokenAccount,
		u64(l.Price), u64(l.TokenSize), int16(l.Bump), l.CreatedAt,
	)
}

func (t *ledgerTx) UpdateListing(ctx context.Context, l *domain.Listing) error {
	if l == nil {
		return storage.ErrInvalidInput
	}
	query := `
		UPDATE listings
		SET price = $2::numeric, token_size = $3::numeric
		WHERE address = $1
	`
	return t.exec(ctx, "update listing", query, l.Address, u64(l.Price), u64(l.TokenSize))
}

func (t *ledgerTx) DeleteListing(ctx context.Context, addr pda.Pubkey) error {
	return t.exec(ctx, "delete listing", `DELETE FROM listings WHERE address = $1`, addr)
}

// --- trade states ---

func (t *ledgerTx) TradeState(ctx context.Context, addr pda.Pubkey) (*domain.TradeState, error) {
	query := `
		SELECT address, kind, wallet, auction_house, token_account, treasury_mint, token_mint,
		       price::text, token_size::text, bump
		FROM trade_states
		WHERE address = $1
		FOR UPDATE
	`

	var ts domain.TradeState
	var kind, bump int16
	var price, size string
	err := t.tx.QueryRow(ctx, query, addr).Scan(
		&ts.Address, &kind, &ts.Wallet, &ts.AuctionHouse, &ts.TokenAccount, &ts.TreasuryMint, &ts.TokenMint,
		&price, &size, &bump,
	)
	if err != nil {
		return nil, translate("get trade state", err)
	}
	if ts.Price, err = parseU64(price, "price"); err != nil {
		return nil, err
	}
	if ts.TokenSize, err = parseU64(size, "token_size"); err != nil {
		return nil, err
	}
	ts.Kind = domain.TradeStateKind(kind)
	ts.Bump = uint8(bump)
	return &ts, nil
}

func (t *ledgerTx) CreateTradeState(ctx context.Context, ts *domain.TradeState) error {
	if ts == nil {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO trade_states (
			address, kind, wallet, auction_house, token_account, treasury_mint, token_mint,
			price, token_size, bump
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10)
	`
	return t.exec(ctx, "insert trade state", query,
		ts.Address, int16(ts.Kind), ts.Wallet, ts.AuctionHouse, ts.TokenAccount, ts.TreasuryMint, ts.TokenMint,
		u64(ts.Price), u64(ts.TokenSize), int16(ts.Bump),
	)
}

func (t *ledgerTx) DeleteTradeState(ctx context.Context, addr pda.Pubkey) error {
	return t.exec(ctx, "delete trade state", `DELETE FROM trade_states WHERE address = $1`, addr)
}

// --- token accounts ---

func (t *ledgerTx) TokenAccount(ctx context.Context, addr pda.Pubkey) (*domain.TokenAccount, error) {
	query := `
		SELECT address, mint, owner, amount::text, delegate, delegated_amount::text
		FROM token_accounts
		WHERE address = $1
		FOR UPDATE
	`

	var a domain.TokenAccount
	var amount, delegated string
	err := t.tx.QueryRow(ctx, query, addr).Scan(&a.Address, &a.Mint, &a.Owner, &amount, &a.Delegate, &delegated)
	if err != nil {
		return nil, translate("get token account", err)
	}
	if a.Amount, err = parseU64(amount, "amount"); err != nil {
		return nil, err
	}
	if a.DelegatedAmount, err = parseU64(delegated, "delegated_amount"); err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *ledgerTx) CreateTokenAccount(ctx context.Context, a *domain.TokenAccount) error {
	if a == nil {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO token_accounts (address, mint, owner, amount, delegate, delegated_amount)
		VALUES ($1, $2, $3, $4::numeric, $5, $6::numeric)
	`
	return t.exec(ctx, "insert token account", query,
		a.Address, a.Mint, a.Owner, u64(a.Amount), a.Delegate, u64(a.DelegatedAmount),
	)
}

func (t *ledgerTx) UpdateTokenAccount(ctx context.Context, a *domain.TokenAccount) error {
	if a == nil {
		return storage.ErrInvalidInput
	}
	query := `
		UPDATE token_accounts
		SET owner = $2, amount = $3::numeric, delegate = $4, delegated_amount = $5::numeric
		WHERE address = $1
	`
	return t.exec(ctx, "update token account", query,
		a.Address, a.Owner, u64(a.Amount), a.Delegate, u64(a.DelegatedAmount),
	)
}

// --- metadata ---

func (t *ledgerTx) Metadata(ctx context.Context, addr pda.Pubkey) (*domain.Metadata, error) {
	query := `
		SELECT address, mint, update_authority, name, symbol, uri, seller_fee_basis_points, creators
		FROM metadata
		WHERE address = $1
	`

	var m domain.Metadata
	var sellerFee int32
	var creators []byte
	err := t.tx.QueryRow(ctx, query, addr).Scan(
		&m.Address, &m.Mint, &m.UpdateAuthority, &m.Name, &m.Symbol, &m.URI, &sellerFee, &creators,
	)
	if err != nil {
		return nil, translate("get metadata", err)
	}
	m.SellerFeeBasisPoints = uint16(sellerFee)
	if len(creators) > 0 {
		if err := json.Unmarshal(creators, &m.Creators); err != nil {
			return nil, fmt.Errorf("decode creators: %w", err)
		}
	}
	return &m, nil
}

func (t *ledgerTx) CreateMetadata(ctx context.Context, m *domain.Metadata) error {
	if m == nil {
		return storage.ErrInvalidInput
	}
	creators := m.Creators
	if creators == nil {
		creators = []domain.Creator{}
	}
	raw, err := json.Marshal(creators)
	if err != nil {
		return fmt.Errorf("encode creators: %w", err)
	}

	query := `
		INSERT INTO metadata (address, mint, update_authority, name, symbol, uri, seller_fee_basis_points, creators)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
	`
	return t.exec(ctx, "insert metadata", query,
		m.Address, m.Mint, m.UpdateAuthority, m.Name, m.Symbol, m.URI, int32(m.SellerFeeBasisPoints), string(raw),
	)
}
