package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"reward-center/internal/config"
	"reward-center/internal/domain"
	applog "reward-center/internal/log"
	"reward-center/internal/pda"
	"reward-center/internal/rewardcenter"
	"reward-center/internal/storage/migrations"
	pgstore "reward-center/internal/storage/postgres"
)

var rulesFlags = []cli.Flag{
	&cli.UintFlag{Name: "seller-reward-bps", Value: 5000, Usage: "seller share of the total reward in basis points"},
	&cli.StringFlag{Name: "operand", Value: "divide", Usage: "how the price scales into the total reward (multiple, divide)"},
	&cli.UintFlag{Name: "numeral", Value: 10, Usage: "payout multiplier or divisor"},
}

var migrateCmd = &cli.Command{
	Name:  "migrate",
	Usage: "apply PostgreSQL ledger and ClickHouse receipt schemas",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		if cfg.UseMemory {
			return errors.New("nothing to migrate with in-memory storage")
		}
		logger := applog.NewLogger(cfg.Debug)
		defer func() { _ = logger.Sync() }()

		pool, err := pgstore.NewPool(c.Context, cfg.PostgresDSN, cfg.PostgresMaxConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(c.Context, pool); err != nil {
			return err
		}
		versions, err := migrations.AppliedPostgresVersions(c.Context, pool)
		if err != nil {
			return err
		}
		logger.Info("postgres migrations applied", zap.Strings("versions", versions))

		if cfg.ClickhouseDSN == "" {
			return nil
		}
		conn, err := migrations.RunClickhouseMigrations(c.Context, cfg.ClickhouseDSN)
		if err != nil {
			return err
		}
		defer func() { _ = conn.Close() }()
		logger.Info("clickhouse migrations applied")
		return nil
	},
}

var createCmd = &cli.Command{
	Name:  "create",
	Usage: "create the reward center of an auction house",
	Flags: append([]cli.Flag{
		&cli.StringFlag{Name: "auction-house", Required: true},
		&cli.StringFlag{Name: "wallet", Required: true, Usage: "auction house authority"},
		&cli.StringFlag{Name: "mint", Required: true, Usage: "reward token mint"},
	}, rulesFlags...),
	Action: func(c *cli.Context) error {
		keys, err := pubkeys(c, "auction-house", "wallet", "mint")
		if err != nil {
			return err
		}
		rules, err := rulesFromFlags(c)
		if err != nil {
			return err
		}
		return withRuntime(c, func(rt *runtime) error {
			rc, err := rt.rewards.CreateRewardCenter(c.Context, rewardcenter.CreateParams{
				AuctionHouse: keys[0],
				Wallet:       keys[1],
				TokenMint:    keys[2],
				Rules:        rules,
			})
			if err != nil {
				return err
			}
			return printJSON(rc)
		})
	},
}

var editCmd = &cli.Command{
	Name:  "edit",
	Usage: "replace the reward rules of a reward center",
	Flags: append([]cli.Flag{
		&cli.StringFlag{Name: "reward-center", Required: true},
		&cli.StringFlag{Name: "wallet", Required: true, Usage: "auction house authority"},
	}, rulesFlags...),
	Action: func(c *cli.Context) error {
		keys, err := pubkeys(c, "reward-center", "wallet")
		if err != nil {
			return err
		}
		rules, err := rulesFromFlags(c)
		if err != nil {
			return err
		}
		return withRuntime(c, func(rt *runtime) error {
			rc, err := rt.rewards.EditRewardCenter(c.Context, keys[0], keys[1], rules)
			if err != nil {
				return err
			}
			return printJSON(rc)
		})
	},
}

var fundCmd = &cli.Command{
	Name:  "fund",
	Usage: "move reward tokens into the reward center treasury",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "reward-center", Required: true},
		&cli.StringFlag{Name: "source", Required: true, Usage: "reward token account to fund from"},
		&cli.StringFlag{Name: "authority", Required: true, Usage: "owner or delegate of source"},
		&cli.Uint64Flag{Name: "amount", Required: true},
	},
	Action: func(c *cli.Context) error {
		keys, err := pubkeys(c, "reward-center", "source", "authority")
		if err != nil {
			return err
		}
		return withRuntime(c, func(rt *runtime) error {
			if err := rt.rewards.Fund(c.Context, keys[0], keys[1], keys[2], c.Uint64("amount")); err != nil {
				return err
			}
			return printBalance(c, rt, keys[0])
		})
	},
}

var withdrawCmd = &cli.Command{
	Name:  "withdraw",
	Usage: "move reward tokens out of the reward center treasury",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "reward-center", Required: true},
		&cli.StringFlag{Name: "wallet", Required: true, Usage: "auction house authority"},
		&cli.StringFlag{Name: "destination", Required: true, Usage: "reward token account to credit"},
		&cli.Uint64Flag{Name: "amount", Required: true},
	},
	Action: func(c *cli.Context) error {
		keys, err := pubkeys(c, "reward-center", "wallet", "destination")
		if err != nil {
			return err
		}
		return withRuntime(c, func(rt *runtime) error {
			if err := rt.rewards.Withdraw(c.Context, keys[0], keys[1], keys[2], c.Uint64("amount")); err != nil {
				return err
			}
			return printBalance(c, rt, keys[0])
		})
	},
}

var withdrawAuctionHouseCmd = &cli.Command{
	Name:  "withdraw-auction-house",
	Usage: "move collected marketplace fees out of the auction house treasury",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "auction-house", Required: true},
		&cli.StringFlag{Name: "wallet", Required: true, Usage: "auction house authority"},
		&cli.StringFlag{Name: "destination", Required: true, Usage: "treasury mint account to credit"},
		&cli.Uint64Flag{Name: "amount", Required: true},
	},
	Action: func(c *cli.Context) error {
		keys, err := pubkeys(c, "auction-house", "wallet", "destination")
		if err != nil {
			return err
		}
		return withRuntime(c, func(rt *runtime) error {
			return rt.rewards.WithdrawAuctionHouse(c.Context, keys[0], keys[1], keys[2], c.Uint64("amount"))
		})
	},
}

var stateCmd = &cli.Command{
	Name:  "state",
	Usage: "print a reward center or listing as JSON",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "reward-center"},
		&cli.StringFlag{Name: "listing"},
	},
	Action: func(c *cli.Context) error {
		return withRuntime(c, func(rt *runtime) error {
			switch {
			case c.String("listing") != "":
				keys, err := pubkeys(c, "listing")
				if err != nil {
					return err
				}
				listing, err := rt.rewards.Listing(c.Context, keys[0])
				if err != nil {
					return err
				}
				return printJSON(listing)
			case c.String("reward-center") != "":
				keys, err := pubkeys(c, "reward-center")
				if err != nil {
					return err
				}
				rc, err := rt.rewards.RewardCenter(c.Context, keys[0])
				if err != nil {
					return err
				}
				return printJSON(rc)
			default:
				return errors.New("one of --reward-center or --listing is required")
			}
		})
	},
}

var balanceCmd = &cli.Command{
	Name:  "balance",
	Usage: "print the reward treasury balance of a reward center",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "reward-center", Required: true},
		&cli.BoolFlag{Name: "on-chain", Usage: "also read the treasury balance from the Solana RPC endpoint"},
	},
	Action: func(c *cli.Context) error {
		keys, err := pubkeys(c, "reward-center")
		if err != nil {
			return err
		}
		return withRuntime(c, func(rt *runtime) error {
			if !c.Bool("on-chain") {
				return printBalance(c, rt, keys[0])
			}
			return printOnChainBalance(c, rt, keys[0])
		})
	},
}

func withRuntime(c *cli.Context, fn func(rt *runtime) error) error {
	rt, err := openRuntime(c.Context, c)
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := fn(rt); err != nil {
		rt.logger.Debug("command failed", zap.String("command", c.Command.Name), zap.Error(err))
		return err
	}
	return nil
}

// pubkeys parses the named flags as base58 addresses.
func pubkeys(c *cli.Context, names ...string) ([]pda.Pubkey, error) {
	keys := make([]pda.Pubkey, len(names))
	for i, name := range names {
		key, err := pda.ParsePubkey(c.String(name))
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", name, err)
		}
		keys[i] = key
	}
	return keys, nil
}

func rulesFromFlags(c *cli.Context) (domain.RewardRules, error) {
	op, err := domain.ParsePayoutOperation(c.String("operand"))
	if err != nil {
		return domain.RewardRules{}, err
	}
	bps, numeral := c.Uint("seller-reward-bps"), c.Uint("numeral")
	if bps > domain.BasisPointsDenominator || numeral > 0xFFFF {
		return domain.RewardRules{}, fmt.Errorf("%w: seller share %d bps, numeral %d", domain.ErrInvalidRewardRules, bps, numeral)
	}
	rules := domain.RewardRules{
		SellerRewardPayoutBasisPoints: uint16(bps),
		MathematicalOperand:           op,
		PayoutNumeral:                 uint16(numeral),
	}
	return rules, rules.Validate()
}

func printBalance(c *cli.Context, rt *runtime, rewardCenter pda.Pubkey) error {
	balance, err := rt.rewards.Balance(c.Context, rewardCenter)
	if err != nil {
		return err
	}
	return printJSON(struct {
		RewardCenter pda.Pubkey `json:"reward_center"`
		Balance      uint64     `json:"balance"`
	}{rewardCenter, balance})
}

// printOnChainBalance compares the ledger balance with the reward treasury
// token account as reported by the RPC node.
func printOnChainBalance(c *cli.Context, rt *runtime, rewardCenter pda.Pubkey) error {
	if rt.rpc == nil {
		return fmt.Errorf("--on-chain requires %s", config.KeyRPCEndpoint)
	}
	rc, err := rt.rewards.RewardCenter(c.Context, rewardCenter)
	if err != nil {
		return err
	}
	ledger, err := rt.rewards.Balance(c.Context, rewardCenter)
	if err != nil {
		return err
	}
	treasury, _, err := pda.AssociatedTokenAddress(rc.Address, rc.TokenMint)
	if err != nil {
		return err
	}
	amount, err := rt.rpc.GetTokenAccountBalance(c.Context, treasury)
	if err != nil {
		return err
	}
	return printJSON(struct {
		RewardCenter    pda.Pubkey `json:"reward_center"`
		Treasury        pda.Pubkey `json:"treasury"`
		Balance         uint64     `json:"balance"`
		OnChainBalance  uint64     `json:"on_chain_balance"`
		OnChainUIAmount string     `json:"on_chain_ui_amount"`
	}{rewardCenter, treasury, ledger, amount.Amount, amount.UIAmountString})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
