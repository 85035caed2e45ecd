package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, uint64(1), cfg.Chain.ChainID)
	assert.Empty(t, cfg.Chain.ContractAddress)
	assert.Equal(t, 1000, cfg.Source.PageSize)
	assert.Equal(t, uint64(10000), cfg.Source.BlocksPerQuery)
	assert.Equal(t, 4, cfg.Source.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Source.RequestTimeout)
	assert.Equal(t, uint64(3), cfg.Source.MaxRetries)
	assert.Equal(t, 0, cfg.Scan.Workers)
	assert.False(t, cfg.Scan.DisableViewTags)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("UMBRA_CHAIN_RPC_URL", "https://eth.example.com")
	t.Setenv("UMBRA_CHAIN_CONTRACT_ADDRESS", "0xFb2dc580Eed955B528407b4d36FfaFe3da685401")
	t.Setenv("UMBRA_CHAIN_START_BLOCK", "12345")
	t.Setenv("UMBRA_SOURCE_CONCURRENCY", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://eth.example.com", cfg.Chain.RPCURL)
	assert.Equal(t, "0xFb2dc580Eed955B528407b4d36FfaFe3da685401", cfg.Chain.ContractAddress)
	assert.Equal(t, uint64(12345), cfg.Chain.StartBlock)
	assert.Equal(t, 8, cfg.Source.Concurrency)
}
