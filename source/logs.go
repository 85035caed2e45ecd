package source

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/errgroup"

	umbra "github.com/doublespending/umbra-protocol-performance"
)

// announcementTopic is the topic hash of the on-chain announcement event:
// Announcement(address indexed receiver, uint256 amount, address indexed
// token, bytes32 pkx, bytes32 ciphertext).
var announcementTopic = crypto.Keccak256Hash([]byte("Announcement(address,uint256,address,bytes32,bytes32)"))

// EthClient is the slice of the chain node API the log backend needs.
type EthClient interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	Close()
}

// LogSource fetches announcements straight from the chain node's event logs.
// Node providers cap the number of blocks per query, so requested ranges are
// split at BlocksPerQuery and the sub-ranges fetched concurrently.
type LogSource struct {
	client   EthClient
	contract common.Address
	cfg      Config
	logger   *slog.Logger
}

// NewLogSource dials the configured RPC endpoint and builds a direct-log
// source.
func NewLogSource(ctx context.Context, cfg Config) (*LogSource, error) {
	cfg = cfg.WithDefaults()
	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}
	return newLogSource(client, cfg), nil
}

// newLogSource wires an already-connected client; tests inject fakes here.
func newLogSource(client EthClient, cfg Config) *LogSource {
	cfg = cfg.WithDefaults()
	return &LogSource{
		client:   client,
		contract: common.HexToAddress(cfg.Chain.ContractAddress),
		cfg:      cfg,
		logger:   cfg.Logger,
	}
}

// Close releases the underlying RPC connection.
func (s *LogSource) Close() {
	s.client.Close()
}

// blockRange is one provider-sized sub-query.
type blockRange struct {
	from, to uint64
}

// splitRange cuts [from, to] into sub-ranges of at most size blocks.
func splitRange(from, to, size uint64) []blockRange {
	var chunks []blockRange
	for start := from; start <= to; start += size {
		end := start + size - 1
		if end > to {
			end = to
		}
		chunks = append(chunks, blockRange{from: start, to: end})
	}
	return chunks
}

// Fetch implements Source. Sub-ranges are independent, so they are fetched
// concurrently up to the configured limit; results are concatenated in range
// order.
func (s *LogSource) Fetch(ctx context.Context, startBlock, endBlock uint64) ([]umbra.Announcement, error) {
	from, to, ok, err := s.cfg.clampRange(startBlock, endBlock)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	chunks := splitRange(from, to, s.cfg.BlocksPerQuery)
	results := make([][]umbra.Announcement, len(chunks))
	var completed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, ch := range chunks {
		i, ch := i, ch
		g.Go(func() error {
			anns, err := s.fetchChunk(gctx, ch)
			if err != nil {
				return fmt.Errorf("blocks %d-%d: %w", ch.from, ch.to, err)
			}
			results[i] = anns
			completed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, umbra.NewFetchError(from, to, completed.Load() > 0, err)
	}

	var out []umbra.Announcement
	for _, anns := range results {
		out = append(out, anns...)
	}
	sortAnnouncements(out)
	s.logger.Debug("log fetch complete",
		slog.Uint64("from", from),
		slog.Uint64("to", to),
		slog.Int("queries", len(chunks)),
		slog.Int("announcements", len(out)),
	)
	return out, nil
}

// fetchChunk queries one sub-range, retrying transient provider failures
// with bounded backoff. Each attempt is bound by the request timeout.
func (s *LogSource) fetchChunk(ctx context.Context, ch blockRange) ([]umbra.Announcement, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(ch.from),
		ToBlock:   new(big.Int).SetUint64(ch.to),
		Addresses: []common.Address{s.contract},
		Topics:    [][]common.Hash{{announcementTopic}},
	}

	var out []umbra.Announcement
	op := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()

		logs, err := s.client.FilterLogs(reqCtx, query)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return fmt.Errorf("%w: %v", umbra.ErrSourceTimeout, err)
			}
			return err
		}

		out = out[:0]
		for _, l := range logs {
			ann, err := parseAnnouncementLog(l)
			if err != nil {
				// Malformed events never repair themselves.
				return backoff.Permanent(err)
			}
			out = append(out, ann)
		}
		return nil
	}
	if err := backoff.Retry(op, s.cfg.newRetryBackoff(ctx)); err != nil {
		return nil, err
	}
	return out, nil
}

// parseAnnouncementLog decodes one announcement event. The receiver and
// token are indexed topics; the data payload is amount || pkx || ciphertext.
func parseAnnouncementLog(l types.Log) (umbra.Announcement, error) {
	if len(l.Topics) != 3 {
		return umbra.Announcement{}, fmt.Errorf("announcement log: want 3 topics, got %d", len(l.Topics))
	}
	if len(l.Data) != 96 {
		return umbra.Announcement{}, fmt.Errorf("announcement log: want 96 data bytes, got %d", len(l.Data))
	}
	receiver := common.BytesToAddress(l.Topics[1].Bytes()[12:])
	token := common.BytesToAddress(l.Topics[2].Bytes()[12:])
	return umbra.Announcement{
		Receiver:            receiver.Hex(),
		Amount:              new(big.Int).SetBytes(l.Data[0:32]),
		Token:               token.Hex(),
		EphemeralPublicKeyX: "0x" + hex.EncodeToString(l.Data[32:64]),
		Ciphertext:          "0x" + hex.EncodeToString(l.Data[64:96]),
		BlockNumber:         l.BlockNumber,
		TxIndex:             l.TxIndex,
		LogIndex:            l.Index,
	}, nil
}
