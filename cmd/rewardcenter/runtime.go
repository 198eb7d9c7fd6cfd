package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"reward-center/internal/auctionhouse"
	"reward-center/internal/config"
	applog "reward-center/internal/log"
	"reward-center/internal/metaplex"
	"reward-center/internal/pda"
	"reward-center/internal/rewardcenter"
	"reward-center/internal/solana"
	"reward-center/internal/storage"
	chstore "reward-center/internal/storage/clickhouse"
	"reward-center/internal/storage/memory"
	pgstore "reward-center/internal/storage/postgres"
)

// runtime holds the components shared by every command.
type runtime struct {
	cfg      *config.Config
	logger   *zap.Logger
	pool     *pgstore.Pool
	ch       *chstore.Conn
	rpc      *solana.HTTPClient
	ledger   storage.Ledger
	receipts storage.ReceiptStore
	ah       *auctionhouse.Program
	rewards  *rewardcenter.Service

	rewardCenterID pda.Pubkey
	cleanup        []func()
}

// openRuntime loads configuration, connects storage and builds the programs.
func openRuntime(ctx context.Context, c *cli.Context) (*runtime, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	logger := applog.NewLogger(cfg.Debug)

	rt := &runtime{cfg: cfg, logger: logger}
	if err := rt.openStorage(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.openRPC(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	ahOpts := []auctionhouse.Option{auctionhouse.WithLogger(logger.Named("auctionhouse"))}
	if cfg.Programs.AuctionHouse != "" {
		id, err := pda.ParsePubkey(cfg.Programs.AuctionHouse)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("%s: %w", config.KeyAuctionHouseProgramID, err)
		}
		ahOpts = append(ahOpts, auctionhouse.WithProgramID(id))
	}

	rt.rewardCenterID = rewardcenter.DefaultProgramID
	if cfg.Programs.RewardCenter != "" {
		id, err := pda.ParsePubkey(cfg.Programs.RewardCenter)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("%s: %w", config.KeyRewardCenterProgramID, err)
		}
		rt.rewardCenterID = id
	}

	rt.ah = auctionhouse.New(rt.metadataValidator(), ahOpts...)
	rt.rewards = rewardcenter.NewService(rt.ledger, rt.ah,
		rewardcenter.WithProgramID(rt.rewardCenterID),
		rewardcenter.WithLogger(logger.Named("rewardcenter")),
	)
	return rt, nil
}

func (rt *runtime) openStorage(ctx context.Context) error {
	if rt.cfg.UseMemory {
		rt.logger.Warn("using in-memory storage, state is lost on exit")
		rt.ledger = memory.NewLedger()
		rt.receipts = memory.NewReceiptStore()
		return nil
	}

	pool, err := pgstore.NewPool(ctx, rt.cfg.PostgresDSN, rt.cfg.PostgresMaxConns)
	if err != nil {
		return err
	}
	rt.pool = pool
	rt.cleanup = append(rt.cleanup, pool.Close)
	rt.ledger = pgstore.NewLedger(pool)

	if rt.cfg.ClickhouseDSN == "" {
		rt.logger.Info("no clickhouse configured, receipts kept in memory")
		rt.receipts = memory.NewReceiptStore()
		return nil
	}
	conn, err := chstore.NewConn(ctx, rt.cfg.ClickhouseDSN)
	if err != nil {
		return fmt.Errorf("connect to clickhouse: %w", err)
	}
	rt.ch = conn
	rt.cleanup = append(rt.cleanup, func() { _ = conn.Close() })
	rt.receipts = chstore.NewReceiptStore(conn)
	return nil
}

// openRPC builds the JSON-RPC client when an endpoint is configured and
// checks that the node answers.
func (rt *runtime) openRPC(ctx context.Context) error {
	if rt.cfg.Solana.Endpoint == "" {
		return nil
	}
	rt.rpc = solana.NewHTTPClient(rt.cfg.Solana.Endpoint,
		solana.WithTimeout(rt.cfg.Solana.Timeout),
		solana.WithMaxRetries(rt.cfg.Solana.Retries),
		solana.WithCommitment(rt.cfg.Solana.Commitment),
		solana.WithLogger(rt.logger.Named("rpc")),
	)
	slot, err := rt.rpc.GetSlot(ctx)
	if err != nil {
		return fmt.Errorf("solana rpc %s: %w", rt.cfg.Solana.Endpoint, err)
	}
	rt.logger.Info("connected to solana rpc",
		zap.String("endpoint", rt.cfg.Solana.Endpoint),
		zap.Uint64("slot", slot),
	)
	return nil
}

func (rt *runtime) metadataValidator() *metaplex.Validator {
	if rt.cfg.Metadata.Source != "rpc" || rt.rpc == nil {
		return metaplex.NewValidator(metaplex.LedgerSource{})
	}
	rt.logger.Info("asserting metadata over rpc", zap.Duration("cache_ttl", rt.cfg.Metadata.CacheTTL))
	return metaplex.NewValidator(metaplex.NewRPCSource(rt.rpc, rt.cfg.Metadata.CacheTTL, rt.logger.Named("metaplex")))
}

// Close releases storage connections in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.cleanup) - 1; i >= 0; i-- {
		rt.cleanup[i]()
	}
	rt.cleanup = nil
	if rt.logger != nil {
		_ = rt.logger.Sync()
	}
}
