// Package auctionhouse is the escrow and trade-state subsystem consumed by
// the reward center. It keeps buyer funds in derived escrow accounts,
// records open orders as trade states and executes sales, all against a
// ledger transaction supplied by the caller.
package auctionhouse

import (
	"context"
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
	"go.uber.org/zap"

	"reward-center/internal/domain"
	"reward-center/internal/metaplex"
	"reward-center/internal/pda"
	"reward-center/internal/storage"
)

// DefaultProgramID is the mainnet Auction House program.
var DefaultProgramID = pda.MustParsePubkey("hausS13jsjafwWwGqZTUQRmWyvyxn9EQpqMwV1PBBmk")

// Seed tags.
const (
	Prefix        = "auction_house"
	FeePayerTag   = "fee_payer"
	TreasuryTag   = "treasury"
	SignerTag     = "signer"
	AuctioneerTag = "auctioneer"
)

// Trade-state prices with special meaning.
const (
	// SentinelPrice is the price encoded in trade states registered through
	// an auctioneer; the real price is settled at execution.
	SentinelPrice uint64 = math.MaxUint64

	// FreePrice is the price encoded in the free seller trade state.
	FreePrice uint64 = 0
)

// RemainingAccount is a creator royalty destination for ExecuteSale.
// Entries are matched in order against the asset metadata creators.
type RemainingAccount struct {
	Creator      pda.Pubkey `json:"creator"`
	TokenAccount pda.Pubkey `json:"token_account"` // associated account of Creator for the treasury mint
}

// Program executes auction house operations.
type Program struct {
	id       pda.Pubkey
	metadata *metaplex.Validator
	logger   *zap.Logger
}

// Option configures a Program.
type Option func(*Program)

// WithProgramID overrides DefaultProgramID.
func WithProgramID(id pda.Pubkey) Option {
	return func(p *Program) {
		p.id = id
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Program) {
		p.logger = logger
	}
}

// New creates a Program that asserts asset metadata with validator.
func New(validator *metaplex.Validator, opts ...Option) *Program {
	p := &Program{
		id:       DefaultProgramID,
		metadata: validator,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metadata == nil {
		p.metadata = metaplex.NewValidator(nil)
	}
	return p
}

// ID returns the program address every derivation is made under.
func (p *Program) ID() pda.Pubkey {
	return p.id
}

// Metadata returns the validator sales assert asset metadata with.
func (p *Program) Metadata() *metaplex.Validator {
	return p.metadata
}

// Find derives the canonical address and bump for seeds under the program.
func (p *Program) Find(seeds [][]byte) (pda.Pubkey, uint8, error) {
	return pda.FindProgramAddress(seeds, p.id)
}

// Verify checks that got is the address of seeds with bump under the program.
func (p *Program) Verify(name string, got pda.Pubkey, seeds [][]byte, bump uint8) error {
	return pda.Verify(name, got, seeds, bump, p.id)
}

// AuctionHouseSeeds: [prefix, creator, treasury_mint]
func AuctionHouseSeeds(creator, treasuryMint pda.Pubkey) [][]byte {
	return [][]byte{[]byte(Prefix), creator[:], treasuryMint[:]}
}

// FeeAccountSeeds: [prefix, auction_house, "fee_payer"]
func FeeAccountSeeds(auctionHouse pda.Pubkey) [][]byte {
	return [][]byte{[]byte(Prefix), auctionHouse[:], []byte(FeePayerTag)}
}

// TreasurySeeds: [prefix, auction_house, "treasury"]
func TreasurySeeds(auctionHouse pda.Pubkey) [][]byte {
	return [][]byte{[]byte(Prefix), auctionHouse[:], []byte(TreasuryTag)}
}

// EscrowSeeds: [prefix, auction_house, wallet]
func EscrowSeeds(auctionHouse, wallet pda.Pubkey) [][]byte {
	return [][]byte{[]byte(Prefix), auctionHouse[:], wallet[:]}
}

// BuyerTradeStateSeeds: [prefix, wallet, auction_house, treasury_mint, token_mint, price, size]
func BuyerTradeStateSeeds(wallet, auctionHouse, treasuryMint, tokenMint pda.Pubkey, price, size uint64) [][]byte {
	return [][]byte{
		[]byte(Prefix),
		wallet[:],
		auctionHouse[:],
		treasuryMint[:],
		tokenMint[:],
		pda.U64Seed(price),
		pda.U64Seed(size),
	}
}

// SellerTradeStateSeeds: [prefix, wallet, auction_house, token_account, treasury_mint, token_mint, price, size]
func SellerTradeStateSeeds(wallet, auctionHouse, tokenAccount, treasuryMint, tokenMint pda.Pubkey, price, size uint64) [][]byte {
	return [][]byte{
		[]byte(Prefix),
		wallet[:],
		auctionHouse[:],
		tokenAccount[:],
		treasuryMint[:],
		tokenMint[:],
		pda.U64Seed(price),
		pda.U64Seed(size),
	}
}

// AuctioneerSeeds: ["auctioneer", auction_house, authority]
func AuctioneerSeeds(auctionHouse, authority pda.Pubkey) [][]byte {
	return [][]byte{[]byte(AuctioneerTag), auctionHouse[:], authority[:]}
}

// ProgramAsSignerSeeds: [prefix, "signer"]
func ProgramAsSignerSeeds() [][]byte {
	return [][]byte{[]byte(Prefix), []byte(SignerTag)}
}

// authorize checks that signer is the delegated auctioneer of ah with scope.
func (p *Program) authorize(ctx context.Context, tx storage.AuctionHouseTx, ah *domain.AuctionHouse, signer pda.Signer, scope domain.AuthorityScope) (*domain.Auctioneer, error) {
	if !signer.Valid() {
		return nil, fmt.Errorf("auctioneer signature missing: %w", domain.ErrUnauthorized)
	}
	if !ah.HasAuctioneer {
		return nil, fmt.Errorf("auction house %s has no auctioneer: %w", ah.Address, domain.ErrUnauthorized)
	}

	addr, _, err := p.Find(AuctioneerSeeds(ah.Address, signer.Key()))
	if err != nil {
		return nil, fmt.Errorf("derive auctioneer: %w", err)
	}
	a, err := tx.Auctioneer(ctx, addr)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s is not a delegated auctioneer of %s: %w", signer.Key(), ah.Address, domain.ErrUnauthorized)
		}
		return nil, err
	}
	if a.AuctionHouse != ah.Address || a.Authority != signer.Key() {
		return nil, fmt.Errorf("auctioneer %s does not belong to %s: %w", addr, ah.Address, domain.ErrUnauthorized)
	}
	if !a.Scopes.Has(scope) {
		return nil, fmt.Errorf("auctioneer %s lacks scope %#x: %w", addr, scope, domain.ErrUnauthorized)
	}
	return a, nil
}

func (p *Program) loadAuctionHouse(ctx context.Context, tx storage.AuctionHouseTx, addr pda.Pubkey) (*domain.AuctionHouse, error) {
	ah, err := tx.AuctionHouse(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("auction house %s: %w", addr, err)
	}
	return ah, nil
}

// loadTradeState returns the trade state at addr. A missing state is a conflict.
func loadTradeState(ctx context.Context, tx storage.TradeStateTx, name string, addr pda.Pubkey) (*domain.TradeState, error) {
	ts, err := tx.TradeState(ctx, addr)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s %s not registered: %w", name, addr, domain.ErrTradeStateConflict)
		}
		return nil, err
	}
	return ts, nil
}

// createTradeState claims addr for ts. An existing state is a conflict.
func createTradeState(ctx context.Context, tx storage.TradeStateTx, name string, ts *domain.TradeState) error {
	if err := tx.CreateTradeState(ctx, ts); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("%s %s already registered: %w", name, ts.Address, domain.ErrTradeStateConflict)
		}
		return err
	}
	return nil
}

// basisPoints returns amount * bps / 10000 rounded down. bps is capped at 100%.
func basisPoints(amount uint64, bps uint16) uint64 {
	if bps > domain.BasisPointsDenominator {
		bps = domain.BasisPointsDenominator
	}
	return sdkmath.NewUint(amount).
		MulUint64(uint64(bps)).
		QuoUint64(domain.BasisPointsDenominator).
		Uint64()
}

// percentOf returns amount * pct / 100 rounded down. pct is capped at 100.
func percentOf(amount uint64, pct uint8) uint64 {
	if pct > 100 {
		pct = 100
	}
	return sdkmath.NewUint(amount).MulUint64(uint64(pct)).QuoUint64(100).Uint64()
}
