package source

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	umbra "github.com/doublespending/umbra-protocol-performance"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	assert.Equal(t, DefaultPageSize, cfg.PageSize)
	assert.Equal(t, uint64(DefaultBlocksPerQuery), cfg.BlocksPerQuery)
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, uint64(DefaultMaxRetries), cfg.MaxRetries)
	assert.NotNil(t, cfg.Logger)

	tuned := Config{PageSize: 5, Concurrency: 1}.WithDefaults()
	assert.Equal(t, 5, tuned.PageSize)
	assert.Equal(t, 1, tuned.Concurrency)
}

func TestNewSelectsBackend(t *testing.T) {
	t.Run("indexer endpoint wins", func(t *testing.T) {
		src, err := New(context.Background(), Config{
			Chain: umbra.ChainConfig{
				ContractAddress: testContract.Hex(),
				IndexerEndpoint: "http://indexer.local",
				RPCURL:          "http://node.local",
			},
		})
		require.NoError(t, err)
		assert.IsType(t, &IndexerSource{}, src)
	})

	t.Run("falls back to direct logs", func(t *testing.T) {
		src, err := New(context.Background(), Config{
			Chain: umbra.ChainConfig{
				ContractAddress: testContract.Hex(),
				RPCURL:          "http://127.0.0.1:8545",
			},
		})
		require.NoError(t, err)
		assert.IsType(t, &LogSource{}, src)
	})

	t.Run("rejects missing contract", func(t *testing.T) {
		_, err := New(context.Background(), Config{
			Chain: umbra.ChainConfig{RPCURL: "http://127.0.0.1:8545"},
		})
		assert.ErrorIs(t, err, umbra.ErrMissingContractAddress)
	})

	t.Run("rejects missing endpoints", func(t *testing.T) {
		_, err := New(context.Background(), Config{
			Chain: umbra.ChainConfig{ContractAddress: testContract.Hex()},
		})
		assert.ErrorIs(t, err, umbra.ErrMissingEndpoint)
	})
}

// equivalenceFixture is one announcement expressed in both wire formats.
type equivalenceFixture struct {
	receiver common.Address
	token    common.Address
	amount   *big.Int
	pkx      [32]byte
	ct       [32]byte
	block    uint64
	logIdx   uint
}

func TestBackendEquivalence(t *testing.T) {
	fixtures := []equivalenceFixture{
		{common.Address{0x01}, common.Address{0x0a}, big.NewInt(500), fixedBytes(0x11), fixedBytes(0x21), 105, 0},
		{common.Address{0x02}, common.Address{0x0b}, big.NewInt(1), fixedBytes(0x12), fixedBytes(0x22), 105, 3},
		{common.Address{0x03}, common.Address{0x0c}, big.NewInt(12345678), fixedBytes(0x13), fixedBytes(0x23), 250, 1},
		{common.Address{0x04}, common.Address{0x0d}, big.NewInt(9), fixedBytes(0x14), fixedBytes(0x24), 399, 0},
	}

	// Direct-log backend over a fake chain client.
	logs := make([]types.Log, len(fixtures))
	for i, f := range fixtures {
		l := makeTestLog(f.receiver, f.token, f.amount, f.pkx, f.ct, f.block, f.logIdx)
		logs[i] = l
	}
	logSrc := newLogSource(&fakeEthClient{logs: logs}, testLogConfig())
	fromLogs, err := logSrc.Fetch(context.Background(), 0, 500)
	require.NoError(t, err)

	// Indexer backend serving the same data.
	records := make([]announcementRecord, len(fixtures))
	for i, f := range fixtures {
		records[i] = announcementRecord{
			Receiver:   f.receiver.Hex(),
			Amount:     f.amount.String(),
			Token:      f.token.Hex(),
			PKX:        "0x" + hex.EncodeToString(f.pkx[:]),
			Ciphertext: "0x" + hex.EncodeToString(f.ct[:]),
			Block:      f.block,
			LogIndex:   f.logIdx,
		}
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(announcementsPage{Items: records})
	}))
	defer server.Close()

	idxSrc := NewIndexerSource(testIndexerConfig(server.URL, func(c *Config) { c.PageSize = 100 }))
	fromIndexer, err := idxSrc.Fetch(context.Background(), 0, 500)
	require.NoError(t, err)

	// Same block range, either backend: identical ordered sequences.
	assert.Equal(t, fromLogs, fromIndexer)
}

func TestClampRange(t *testing.T) {
	cfg := Config{Chain: umbra.ChainConfig{StartBlock: 100}}.WithDefaults()

	t.Run("clamps to floor", func(t *testing.T) {
		from, to, ok, err := cfg.clampRange(0, 500)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, uint64(100), from)
		assert.Equal(t, uint64(500), to)
	})

	t.Run("empty after clamp", func(t *testing.T) {
		_, _, ok, err := cfg.clampRange(0, 50)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("inverted range", func(t *testing.T) {
		_, _, _, err := cfg.clampRange(500, 400)
		assert.ErrorIs(t, err, umbra.ErrSourceRange)
	})
}

func TestSortAnnouncements(t *testing.T) {
	anns := []umbra.Announcement{
		{BlockNumber: 5, LogIndex: 2},
		{BlockNumber: 1, LogIndex: 9},
		{BlockNumber: 5, LogIndex: 0},
	}
	sortAnnouncements(anns)
	assert.Equal(t, uint64(1), anns[0].BlockNumber)
	assert.Equal(t, uint(0), anns[1].LogIndex)
	assert.Equal(t, uint(2), anns[2].LogIndex)
}
