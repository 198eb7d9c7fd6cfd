package metaplex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"reward-center/internal/domain"
	"reward-center/internal/observability"
	"reward-center/internal/pda"
	"reward-center/internal/solana"
	"reward-center/internal/storage"
)

// Source resolves the metadata record stored at addr.
// Returns storage.ErrNotFound when no record exists.
type Source interface {
	Lookup(ctx context.Context, tx storage.MetadataTx, addr pda.Pubkey) (*domain.Metadata, error)
}

// LedgerSource reads metadata from the ledger transaction.
type LedgerSource struct{}

// Lookup implements Source.
func (LedgerSource) Lookup(ctx context.Context, tx storage.MetadataTx, addr pda.Pubkey) (*domain.Metadata, error) {
	return tx.Metadata(ctx, addr)
}

// RPCSource reads metadata accounts over Solana JSON-RPC and caches decoded
// records for a fixed TTL. Missing accounts are not cached.
type RPCSource struct {
	rpc    solana.RPCClient
	cache  *cache.Cache
	logger *zap.Logger
}

// NewRPCSource creates an RPC-backed source. A non-positive ttl disables expiry.
func NewRPCSource(rpc solana.RPCClient, ttl time.Duration, logger *zap.Logger) *RPCSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	expiry := ttl
	if ttl <= 0 {
		expiry = cache.NoExpiration
	}
	cleanup := 2 * ttl
	if ttl <= 0 {
		cleanup = 0
	}
	return &RPCSource{
		rpc:    rpc,
		cache:  cache.New(expiry, cleanup),
		logger: logger,
	}
}

// Lookup implements Source. tx is unused.
func (s *RPCSource) Lookup(ctx context.Context, _ storage.MetadataTx, addr pda.Pubkey) (*domain.Metadata, error) {
	key := addr.String()
	if v, ok := s.cache.Get(key); ok {
		observability.RecordMetadataCache("hit")
		return cloneMetadata(v.(*domain.Metadata)), nil
	}
	observability.RecordMetadataCache("miss")

	info, err := s.rpc.GetAccountInfo(ctx, addr)
	if err != nil {
		if errors.Is(err, solana.ErrAccountNotFound) {
			return nil, fmt.Errorf("metadata %s: %w", addr, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("fetch metadata %s: %w", addr, err)
	}
	if info.Owner != ProgramID {
		return nil, fmt.Errorf("metadata %s owned by %s: %w", addr, info.Owner, domain.ErrInvalidMetadata)
	}

	meta, err := Decode(addr, info.Data)
	if err != nil {
		s.logger.Warn("undecodable metadata account", zap.Stringer("address", addr), zap.Error(err))
		return nil, fmt.Errorf("metadata %s: %v: %w", addr, err, domain.ErrInvalidMetadata)
	}

	s.cache.Set(key, meta, cache.DefaultExpiration)
	return cloneMetadata(meta), nil
}

// Prefetch loads the record at addr into the cache so a later Lookup
// inside a ledger unit is served without a network call.
func (s *RPCSource) Prefetch(ctx context.Context, addr pda.Pubkey) error {
	_, err := s.Lookup(ctx, nil, addr)
	return err
}

func cloneMetadata(m *domain.Metadata) *domain.Metadata {
	c := *m
	c.Creators = append([]domain.Creator(nil), m.Creators...)
	return &c
}

// Validator asserts that a metadata account describes the mint held by a
// token account.
type Validator struct {
	source Source
}

// NewValidator creates a validator over source. A nil source reads the ledger.
func NewValidator(source Source) *Validator {
	if source == nil {
		source = LedgerSource{}
	}
	return &Validator{source: source}
}

// Prefetch warms the source for addr when it caches remote records. It is
// advisory: AssertValid still decides.
func (v *Validator) Prefetch(ctx context.Context, addr pda.Pubkey) error {
	p, ok := v.source.(interface {
		Prefetch(ctx context.Context, addr pda.Pubkey) error
	})
	if !ok {
		return nil
	}
	return p.Prefetch(ctx, addr)
}

// AssertValid fails with domain.ErrInvalidMetadata unless metadata is the
// derived metadata address of account's mint and a record for that mint
// exists there.
func (v *Validator) AssertValid(ctx context.Context, tx storage.MetadataTx, metadata pda.Pubkey, account *domain.TokenAccount) (*domain.Metadata, error) {
	want, _, err := MetadataAddress(account.Mint)
	if err != nil {
		return nil, fmt.Errorf("derive metadata for mint %s: %w", account.Mint, err)
	}
	if want != metadata {
		return nil, fmt.Errorf("metadata %s is not the metadata of mint %s: %w", metadata, account.Mint, domain.ErrInvalidMetadata)
	}

	meta, err := v.source.Lookup(ctx, tx, metadata)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("metadata %s is empty: %w", metadata, domain.ErrInvalidMetadata)
		}
		return nil, err
	}
	if meta.Mint != account.Mint {
		return nil, fmt.Errorf("metadata %s describes mint %s, not %s: %w", metadata, meta.Mint, account.Mint, domain.ErrInvalidMetadata)
	}
	return meta, nil
}
