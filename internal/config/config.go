// Package config provides configuration loading for the scanning CLI.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for a scan run.
type Config struct {
	Chain  ChainConfig  `mapstructure:"chain"`
	Source SourceConfig `mapstructure:"source"`
	Scan   ScanConfig   `mapstructure:"scan"`
}

// ChainConfig selects the chain and announcement contract.
type ChainConfig struct {
	ChainID         uint64 `mapstructure:"chain_id"`
	ContractAddress string `mapstructure:"contract_address"`
	StartBlock      uint64 `mapstructure:"start_block"`
	RPCURL          string `mapstructure:"rpc_url"`
	IndexerEndpoint string `mapstructure:"indexer_endpoint"`
}

// SourceConfig tunes announcement fetching.
type SourceConfig struct {
	PageSize       int           `mapstructure:"page_size"`
	BlocksPerQuery uint64        `mapstructure:"blocks_per_query"`
	Concurrency    int           `mapstructure:"concurrency"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     uint64        `mapstructure:"max_retries"`
}

// ScanConfig tunes the scan engine.
type ScanConfig struct {
	Workers         int  `mapstructure:"workers"`
	DisableViewTags bool `mapstructure:"disable_view_tags"`
}

// Load reads configuration from files and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/umbra-scan")

	v.SetEnvPrefix("UMBRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Explicitly bind nested chain settings (nested struct issue with viper)
	v.BindEnv("chain.chain_id", "UMBRA_CHAIN_CHAIN_ID")
	v.BindEnv("chain.contract_address", "UMBRA_CHAIN_CONTRACT_ADDRESS")
	v.BindEnv("chain.start_block", "UMBRA_CHAIN_START_BLOCK")
	v.BindEnv("chain.rpc_url", "UMBRA_CHAIN_RPC_URL")
	v.BindEnv("chain.indexer_endpoint", "UMBRA_CHAIN_INDEXER_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	// Mainnet announcement contract defaults
	v.SetDefault("chain.chain_id", 1)
	v.SetDefault("chain.contract_address", "")
	v.SetDefault("chain.start_block", 0)
	v.SetDefault("chain.rpc_url", "")
	v.SetDefault("chain.indexer_endpoint", "")

	// Source defaults
	v.SetDefault("source.page_size", 1000)
	v.SetDefault("source.blocks_per_query", 10000)
	v.SetDefault("source.concurrency", 4)
	v.SetDefault("source.request_timeout", "30s")
	v.SetDefault("source.max_retries", 3)

	// Scan defaults
	v.SetDefault("scan.workers", 0) // 0 = NumCPU
	v.SetDefault("scan.disable_view_tags", false)
}
