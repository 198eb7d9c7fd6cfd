// Package main is the reward center service and its operator commands:
//   - serve: HTTP API, settlement engine and receipt feed
//   - migrate: apply PostgreSQL and ClickHouse schemas
//   - create / edit / fund / withdraw: reward center administration
//   - state / balance: inspect ledger accounts
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"reward-center/internal/config"
)

// Global flags mapped onto config keys. A flag that is set wins over the
// environment and .env.
var globalFlags = []cli.Flag{
	&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
	&cli.BoolFlag{Name: "use-memory", Usage: "use in-memory storage instead of PostgreSQL"},
	&cli.StringFlag{Name: "postgres-dsn", Usage: "PostgreSQL connection string"},
	&cli.StringFlag{Name: "clickhouse-dsn", Usage: "ClickHouse connection string for the receipt store"},
	&cli.StringFlag{Name: "rpc-endpoint", Usage: "Solana RPC HTTP endpoint"},
	&cli.StringFlag{Name: "metadata-source", Usage: "where asset metadata is read from (ledger, rpc)"},
}

var flagKeys = map[string]string{
	"debug":           config.KeyDebug,
	"use-memory":      config.KeyUseMemory,
	"postgres-dsn":    config.KeyPostgresDSN,
	"clickhouse-dsn":  config.KeyClickhouseDSN,
	"rpc-endpoint":    config.KeyRPCEndpoint,
	"metadata-source": config.KeyMetadataSource,
}

func main() {
	app := &cli.App{
		Name:  "rewardcenter",
		Usage: "marketplace reward center and listing settlement",
		Flags: globalFlags,
		Commands: []*cli.Command{
			serveCmd,
			migrateCmd,
			createCmd,
			editCmd,
			fundCmd,
			withdrawCmd,
			withdrawAuctionHouseCmd,
			stateCmd,
			balanceCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		zap.L().Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves the configuration, applying global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	v := config.New()
	for flag, key := range flagKeys {
		if c.IsSet(flag) {
			v.Set(key, c.Value(flag))
		}
	}
	return config.Load(v)
}
