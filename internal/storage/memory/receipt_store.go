package memory

import (
	"context"
	"sort"
	"sync"

	"reward-center/internal/domain"
	"reward-center/internal/pda"
	"reward-center/internal/storage"
)

// ReceiptStore is an in-memory implementation of storage.ReceiptStore.
type ReceiptStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Receipt // keyed by receipt id
}

// NewReceiptStore creates a new in-memory receipt store.
func NewReceiptStore() *ReceiptStore {
	return &ReceiptStore{
		data: make(map[string]*domain.Receipt),
	}
}

// Insert adds a new receipt. Returns ErrDuplicateKey if the id exists.
func (s *ReceiptStore) Insert(_ context.Context, r *domain.Receipt) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *r
	s.data[r.ID] = &copy
	return nil
}

// GetByListing retrieves receipts for a listing, ordered by settled_at ASC.
func (s *ReceiptStore) GetByListing(_ context.Context, listing pda.Pubkey) ([]*domain.Receipt, error) {
	return s.filter(func(r *domain.Receipt) bool {
		return r.Listing == listing
	}), nil
}

// GetByRewardCenter retrieves receipts for a reward center within [start, end].
func (s *ReceiptStore) GetByRewardCenter(_ context.Context, rewardCenter pda.Pubkey, start, end int64) ([]*domain.Receipt, error) {
	return s.filter(func(r *domain.Receipt) bool {
		return r.RewardCenter == rewardCenter && r.SettledAt >= start && r.SettledAt <= end
	}), nil
}

func (s *ReceiptStore) filter(match func(*domain.Receipt) bool) []*domain.Receipt {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Receipt
	for _, r := range s.data {
		if match(r) {
			copy := *r
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].SettledAt != result[j].SettledAt {
			return result[i].SettledAt < result[j].SettledAt
		}
		return result[i].ID < result[j].ID
	})

	return result
}

var _ storage.ReceiptStore = (*ReceiptStore)(nil)
