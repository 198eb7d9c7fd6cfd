package memory

import (
	"context"
	"sync"

	"reward-center/internal/domain"
	"reward-center/internal/pda"
	"reward-center/internal/storage"
)

// Ledger is an in-memory implementation of storage.Ledger.
// Atomic units run one at a time; their writes are staged and applied
// together only when the unit succeeds.
type Ledger struct {
	mu sync.Mutex

	auctionHouses *table[domain.AuctionHouse]
	auctioneers   *table[domain.Auctioneer]
	rewardCenters *table[domain.RewardCenter]
	listings      *table[domain.Listing]
	tradeStates   *table[domain.TradeState]
	tokenAccounts *table[domain.TokenAccount]
	metadata      *table[domain.Metadata]
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		auctionHouses: newTable[domain.AuctionHouse](nil),
		auctioneers:   newTable[domain.Auctioneer](nil),
		rewardCenters: newTable[domain.RewardCenter](nil),
		listings:      newTable[domain.Listing](nil),
		tradeStates:   newTable[domain.TradeState](nil),
		tokenAccounts: newTable[domain.TokenAccount](nil),
		metadata:      newTable(cloneMetadata),
	}
}

var _ storage.Ledger = (*Ledger)(nil)

// Atomic runs fn against a staged view and commits it if fn returns nil.
func (l *Ledger) Atomic(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &ledgerTx{
		auctionHouses: stage(l.auctionHouses),
		auctioneers:   stage(l.auctioneers),
		rewardCenters: stage(l.rewardCenters),
		listings:      stage(l.listings),
		tradeStates:   stage(l.tradeStates),
		tokenAccounts: stage(l.tokenAccounts),
		metadata:      stage(l.metadata),
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx.auctionHouses.commit()
	tx.auctioneers.commit()
	tx.rewardCenters.commit()
	tx.listings.commit()
	tx.tradeStates.commit()
	tx.tokenAccounts.commit()
	tx.metadata.commit()
	return nil
}

func cloneMetadata(m domain.Metadata) domain.Metadata {
	if m.Creators != nil {
		m.Creators = append([]domain.Creator(nil), m.Creators...)
	}
	return m
}

type ledgerTx struct {
	auctionHouses *staged[domain.AuctionHouse]
	auctioneers   *staged[domain.Auctioneer]
	rewardCenters *staged[domain.RewardCenter]
	listings      *staged[domain.Listing]
	tradeStates   *staged[domain.TradeState]
	tokenAccounts *staged[domain.TokenAccount]
	metadata      *staged[domain.Metadata]
}

var _ storage.Tx = (*ledgerTx)(nil)

func getRow[T any](s *staged[T], addr pda.Pubkey) (*T, error) {
	v, ok := s.get(addr)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &v, nil
}

func createRow[T any](s *staged[T], addr pda.Pubkey, v *T) error {
	if v == nil || addr.IsZero() {
		return storage.ErrInvalidInput
	}
	if _, exists := s.get(addr); exists {
		return storage.ErrDuplicateKey
	}
	s.put(addr, *v)
	return nil
}

func updateRow[T any](s *staged[T], addr pda.Pubkey, v *T) error {
	if v == nil || addr.IsZero() {
		return storage.ErrInvalidInput
	}
	if _, exists := s.get(addr); !exists {
		return storage.ErrNotFound
	}
	s.put(addr, *v)
	return nil
}

func deleteRow[T any](s *staged[T], addr pda.Pubkey) error {
	if _, exists := s.get(addr); !exists {
		return storage.ErrNotFound
	}
	s.del(addr)
	return nil
}

func (t *ledgerTx) AuctionHouse(_ context.Context, addr pda.Pubkey) (*domain.AuctionHouse, error) {
	return getRow(t.auctionHouses, addr)
}

func (t *ledgerTx) CreateAuctionHouse(_ context.Context, ah *domain.AuctionHouse) error {
	if ah == nil {
		return storage.ErrInvalidInput
	}
	return createRow(t.auctionHouses, ah.Address, ah)
}

func (t *ledgerTx) Auctioneer(_ context.Context, addr pda.Pubkey) (*domain.Auctioneer, error) {
	return getRow(t.auctioneers, addr)
}

func (t *ledgerTx) CreateAuctioneer(_ context.Context, a *domain.Auctioneer) error {
	if a == nil {
		return storage.ErrInvalidInput
	}
	return createRow(t.auctioneers, a.Address, a)
}

func (t *ledgerTx) RewardCenter(_ context.Context, addr pda.Pubkey) (*domain.RewardCenter, error) {
	return getRow(t.rewardCenters, addr)
}

func (t *ledgerTx) CreateRewardCenter(_ context.Context, rc *domain.RewardCenter) error {
	if rc == nil {
		return storage.ErrInvalidInput
	}
	return createRow(t.rewardCenters, rc.Address, rc)
}

func (t *ledgerTx) UpdateRewardCenter(_ context.Context, rc *domain.RewardCenter) error {
	if rc == nil {
		return storage.ErrInvalidInput
	}
	return updateRow(t.rewardCenters, rc.Address, rc)
}

func (t *ledgerTx) Listing(_ context.Context, addr pda.Pubkey) (*domain.Listing, error) {
	return getRow(t.listings, addr)
}

func (t *ledgerTx) CreateListing(_ context.Context, l *domain.Listing) error {
	if l == nil {
		return storage.ErrInvalidInput
	}
	return createRow(t.listings, l.Address, l)
}

func (t *ledgerTx) UpdateListing(_ context.Context, l *domain.Listing) error {
	if l == nil {
		return storage.ErrInvalidInput
	}
	return updateRow(t.listings, l.Address, l)
}

func (t *ledgerTx) DeleteListing(_ context.Context, addr pda.Pubkey) error {
	return deleteRow(t.listings, addr)
}

func (t *ledgerTx) TradeState(_ context.Context, addr pda.Pubkey) (*domain.TradeState, error) {
	return getRow(t.tradeStates, addr)
}

func (t *ledgerTx) CreateTradeState(_ context.Context, ts *domain.TradeState) error {
	if ts == nil {
		return storage.ErrInvalidInput
	}
	return createRow(t.tradeStates, ts.Address, ts)
}

func (t *ledgerTx) DeleteTradeState(_ context.Context, addr pda.Pubkey) error {
	return deleteRow(t.tradeStates, addr)
}

func (t *ledgerTx) TokenAccount(_ context.Context, addr pda.Pubkey) (*domain.TokenAccount, error) {
	return getRow(t.tokenAccounts, addr)
}

func (t *ledgerTx) CreateTokenAccount(_ context.Context, a *domain.TokenAccount) error {
	if a == nil {
		return storage.ErrInvalidInput
	}
	return createRow(t.tokenAccounts, a.Address, a)
}

func (t *ledgerTx) UpdateTokenAccount(_ context.Context, a *domain.TokenAccount) error {
	if a == nil {
		return storage.ErrInvalidInput
	}
	return updateRow(t.tokenAccounts, a.Address, a)
}

func (t *ledgerTx) Metadata(_ context.Context, addr pda.Pubkey) (*domain.Metadata, error) {
	return getRow(t.metadata, addr)
}

func (t *ledgerTx) CreateMetadata(_ context.Context, m *domain.Metadata) error {
	if m == nil {
		return storage.ErrInvalidInput
	}
	return createRow(t.metadata, m.Address, m)
}
