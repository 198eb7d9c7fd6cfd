// Package config resolves runtime settings from the environment, an optional
// .env file and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment keys.
const (
	KeyPostgresDSN           = "POSTGRES_DSN"
	KeyPostgresMaxConns      = "POSTGRES_MAX_CONNS"
	KeyClickhouseDSN         = "CLICKHOUSE_DSN"
	KeyUseMemory             = "USE_MEMORY"
	KeyRPCEndpoint           = "SOLANA_RPC_ENDPOINT"
	KeyRPCTimeout            = "SOLANA_RPC_TIMEOUT"
	KeyRPCRetries            = "SOLANA_RPC_RETRIES"
	KeyRPCCommitment         = "SOLANA_RPC_COMMITMENT"
	KeyHTTPAddr              = "HTTP_ADDR"
	KeyDebug                 = "DEBUG"
	KeyMetadataCacheTTL      = "METADATA_CACHE_TTL"
	KeyMetadataSource        = "METADATA_SOURCE"
	KeyRewardCenterProgramID = "REWARD_CENTER_PROGRAM_ID"
	KeyAuctionHouseProgramID = "AUCTION_HOUSE_PROGRAM_ID"
)

// Config holds resolved settings.
type Config struct {
	Debug    bool
	HTTPAddr string

	UseMemory        bool
	PostgresDSN      string
	PostgresMaxConns int32
	ClickhouseDSN    string

	Solana   SolanaConfig
	Metadata MetadataConfig
	Programs ProgramConfig
}

// SolanaConfig configures the JSON-RPC client.
type SolanaConfig struct {
	Endpoint   string
	Timeout    time.Duration
	Retries    int
	Commitment string
}

// MetadataConfig selects where asset metadata is asserted from.
type MetadataConfig struct {
	Source   string // "ledger" or "rpc"
	CacheTTL time.Duration
}

// ProgramConfig holds program ids as base58 strings.
type ProgramConfig struct {
	RewardCenter string
	AuctionHouse string
}

// ErrMissingStorage is returned when neither memory nor database storage is configured.
var ErrMissingStorage = errors.New("POSTGRES_DSN is required unless USE_MEMORY is set")

// New returns a viper instance with defaults and environment binding.
// A .env file in the working directory is loaded first if present; existing
// environment variables win over it.
func New() *viper.Viper {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	v := viper.New()
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyUseMemory, false)
	v.SetDefault(KeyPostgresMaxConns, 0)
	v.SetDefault(KeyRPCTimeout, 30*time.Second)
	v.SetDefault(KeyRPCRetries, 3)
	v.SetDefault(KeyRPCCommitment, "confirmed")
	v.SetDefault(KeyMetadataSource, "ledger")
	v.SetDefault(KeyMetadataCacheTTL, 5*time.Minute)
	v.SetDefault(KeyRewardCenterProgramID, "")
	v.SetDefault(KeyAuctionHouseProgramID, "")
	v.SetDefault(KeyPostgresDSN, "")
	v.SetDefault(KeyClickhouseDSN, "")
	v.SetDefault(KeyRPCEndpoint, "")
	v.AutomaticEnv()
	return v
}

// Load resolves a Config from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Debug:            v.GetBool(KeyDebug),
		HTTPAddr:         v.GetString(KeyHTTPAddr),
		UseMemory:        v.GetBool(KeyUseMemory),
		PostgresDSN:      v.GetString(KeyPostgresDSN),
		PostgresMaxConns: v.GetInt32(KeyPostgresMaxConns),
		ClickhouseDSN:    v.GetString(KeyClickhouseDSN),
		Solana: SolanaConfig{
			Endpoint:   v.GetString(KeyRPCEndpoint),
			Timeout:    v.GetDuration(KeyRPCTimeout),
			Retries:    v.GetInt(KeyRPCRetries),
			Commitment: v.GetString(KeyRPCCommitment),
		},
		Metadata: MetadataConfig{
			Source:   v.GetString(KeyMetadataSource),
			CacheTTL: v.GetDuration(KeyMetadataCacheTTL),
		},
		Programs: ProgramConfig{
			RewardCenter: v.GetString(KeyRewardCenterProgramID),
			AuctionHouse: v.GetString(KeyAuctionHouseProgramID),
		},
	}

	if !cfg.UseMemory && cfg.PostgresDSN == "" {
		return nil, ErrMissingStorage
	}
	switch cfg.Metadata.Source {
	case "ledger":
	case "rpc":
		if cfg.Solana.Endpoint == "" {
			return nil, fmt.Errorf("%s=rpc requires %s", KeyMetadataSource, KeyRPCEndpoint)
		}
	default:
		return nil, fmt.Errorf("unknown %s %q", KeyMetadataSource, cfg.Metadata.Source)
	}
	return cfg, nil
}
