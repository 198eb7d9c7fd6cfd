package rewardcenter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"reward-center/internal/auctionhouse"
	"reward-center/internal/domain"
	"reward-center/internal/pda"
	"reward-center/internal/storage"
	"reward-center/internal/token"
)

// Service runs reward center and listing lifecycle operations. Each call is
// one atomic ledger unit.
type Service struct {
	ledger    storage.Ledger
	ah        *auctionhouse.Program
	programID pda.Pubkey
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithProgramID overrides DefaultProgramID.
func WithProgramID(id pda.Pubkey) Option {
	return func(s *Service) {
		s.programID = id
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock sets the time source used for listing timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a Service.
func NewService(ledger storage.Ledger, ah *auctionhouse.Program, opts ...Option) *Service {
	s := &Service{
		ledger:    ledger,
		ah:        ah,
		programID: DefaultProgramID,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProgramID returns the program reward centers are derived under.
func (s *Service) ProgramID() pda.Pubkey {
	return s.programID
}

// CreateParams configure a new reward center.
type CreateParams struct {
	AuctionHouse pda.Pubkey
	Wallet       pda.Pubkey // auction house authority
	TokenMint    pda.Pubkey // reward token
	Rules        domain.RewardRules
}

// CreateRewardCenter derives the reward center of an auction house, opens
// its reward-token treasury and registers it as the auction house's
// auctioneer with every scope.
func (s *Service) CreateRewardCenter(ctx context.Context, p CreateParams) (*domain.RewardCenter, error) {
	if err := p.Rules.Validate(); err != nil {
		return nil, err
	}

	addr, bump, err := pda.FindProgramAddress(RewardCenterSeeds(p.AuctionHouse), s.programID)
	if err != nil {
		return nil, fmt.Errorf("derive reward center: %w", err)
	}
	rc := &domain.RewardCenter{
		Address:      addr,
		AuctionHouse: p.AuctionHouse,
		TokenMint:    p.TokenMint,
		Rules:        p.Rules,
		Bump:         bump,
	}

	err = s.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		ah, err := tx.AuctionHouse(ctx, p.AuctionHouse)
		if err != nil {
			return fmt.Errorf("auction house %s: %w", p.AuctionHouse, err)
		}
		if ah.Authority != p.Wallet {
			return fmt.Errorf("%s is not the authority of %s: %w", p.Wallet, ah.Address, domain.ErrUnauthorized)
		}
		if err := tx.CreateRewardCenter(ctx, rc); err != nil {
			return fmt.Errorf("create reward center %s: %w", rc.Address, err)
		}
		if _, err := token.EnsureAssociatedAccount(ctx, tx, rc.Address, rc.TokenMint); err != nil {
			return fmt.Errorf("reward treasury: %w", err)
		}
		_, err = s.ah.DelegateAuctioneer(ctx, tx, ah.Address, p.Wallet, rc.Address, domain.ScopeAll)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("reward center created",
		zap.Stringer("reward_center", rc.Address),
		zap.Stringer("auction_house", rc.AuctionHouse),
		zap.Stringer("token_mint", rc.TokenMint),
	)
	return rc, nil
}

// EditRewardCenter replaces the reward rules. Only the auction house
// authority may edit.
func (s *Service) EditRewardCenter(ctx context.Context, rewardCenter, wallet pda.Pubkey, rules domain.RewardRules) (*domain.RewardCenter, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	var rc *domain.RewardCenter
	err := s.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		rc, _, err = s.loadAdmin(ctx, tx, rewardCenter, wallet)
		if err != nil {
			return err
		}
		rc.Rules = rules
		return tx.UpdateRewardCenter(ctx, rc)
	})
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// Fund moves amount reward tokens from source into the reward center treasury.
// authority must be the owner or delegate of source.
func (s *Service) Fund(ctx context.Context, rewardCenter, source, authority pda.Pubkey, amount uint64) error {
	return s.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		rc, err := tx.RewardCenter(ctx, rewardCenter)
		if err != nil {
			return fmt.Errorf("reward center %s: %w", rewardCenter, err)
		}
		treasury, err := token.EnsureAssociatedAccount(ctx, tx, rc.Address, rc.TokenMint)
		if err != nil {
			return fmt.Errorf("reward treasury: %w", err)
		}
		return token.Transfer(ctx, tx, source, treasury.Address, authority, amount)
	})
}

// Withdraw moves amount reward tokens out of the treasury to destination.
// Only the auction house authority may withdraw.
func (s *Service) Withdraw(ctx context.Context, rewardCenter, wallet, destination pda.Pubkey, amount uint64) error {
	return s.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		rc, _, err := s.loadAdmin(ctx, tx, rewardCenter, wallet)
		if err != nil {
			return err
		}
		treasury, _, err := pda.AssociatedTokenAddress(rc.Address, rc.TokenMint)
		if err != nil {
			return fmt.Errorf("derive reward treasury: %w", err)
		}
		return token.Transfer(ctx, tx, treasury, destination, rc.Address, amount)
	})
}

// WithdrawAuctionHouse moves collected marketplace fees out of the auction
// house treasury.
func (s *Service) WithdrawAuctionHouse(ctx context.Context, auctionHouse, wallet, destination pda.Pubkey, amount uint64) error {
	return s.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		return s.ah.WithdrawFromTreasury(ctx, tx, auctionHouse, wallet, destination, amount)
	})
}

// Balance returns the reward-token balance of the treasury.
func (s *Service) Balance(ctx context.Context, rewardCenter pda.Pubkey) (uint64, error) {
	var amount uint64
	err := s.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		rc, err := tx.RewardCenter(ctx, rewardCenter)
		if err != nil {
			return fmt.Errorf("reward center %s: %w", rewardCenter, err)
		}
		treasury, _, err := pda.AssociatedTokenAddress(rc.Address, rc.TokenMint)
		if err != nil {
			return fmt.Errorf("derive reward treasury: %w", err)
		}
		amount, err = token.Balance(ctx, tx, treasury)
		return err
	})
	return amount, err
}

// RewardCenter returns the reward center at addr.
func (s *Service) RewardCenter(ctx context.Context, addr pda.Pubkey) (*domain.RewardCenter, error) {
	var rc *domain.RewardCenter
	err := s.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		rc, err = tx.RewardCenter(ctx, addr)
		return err
	})
	return rc, err
}

// loadAdmin loads the reward center and its auction house and checks that
// wallet is the auction house authority.
func (s *Service) loadAdmin(ctx context.Context, tx storage.Tx, rewardCenter, wallet pda.Pubkey) (*domain.RewardCenter, *domain.AuctionHouse, error) {
	rc, err := tx.RewardCenter(ctx, rewardCenter)
	if err != nil {
		return nil, nil, fmt.Errorf("reward center %s: %w", rewardCenter, err)
	}
	ah, err := tx.AuctionHouse(ctx, rc.AuctionHouse)
	if err != nil {
		return nil, nil, fmt.Errorf("auction house %s: %w", rc.AuctionHouse, err)
	}
	if ah.Authority != wallet {
		return nil, nil, fmt.Errorf("%s is not the authority of %s: %w", wallet, ah.Address, domain.ErrUnauthorized)
	}
	return rc, ah, nil
}

// asConflict maps exclusive-creation failures to trade-state conflicts.
func asConflict(err error) error {
	if errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("%v: %w", err, domain.ErrTradeStateConflict)
	}
	return err
}
