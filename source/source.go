// Package source retrieves stealth payment announcements for a block range.
// Two interchangeable backends produce the same ordered Announcement
// sequence: a remote indexer query and a direct chain-log query. Selection is
// driven by configuration; an indexer endpoint takes precedence and its
// absence falls back to direct log mode.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"

	umbra "github.com/doublespending/umbra-protocol-performance"
)

// Defaults applied by Config.WithDefaults.
const (
	DefaultPageSize       = 1000
	DefaultBlocksPerQuery = 10_000
	DefaultConcurrency    = 4
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRetries     = 3

	retryInitialInterval = 100 * time.Millisecond
)

// Config holds configuration for announcement sources.
type Config struct {
	Chain umbra.ChainConfig

	// PageSize caps how many records the indexer backend requests per page.
	PageSize int

	// BlocksPerQuery caps the span of a single log query; larger requested
	// ranges are split into sub-ranges at this limit.
	BlocksPerQuery uint64

	// Concurrency bounds how many sub-range queries run at once.
	Concurrency int

	// RequestTimeout bounds every network fetch. A fetch exceeding it fails
	// with ErrSourceTimeout and is eligible for retry.
	RequestTimeout time.Duration

	// MaxRetries bounds backoff retries per sub-fetch before the whole
	// fetch is surfaced as failed.
	MaxRetries uint64

	Logger *slog.Logger
}

// WithDefaults returns Config with default values applied.
func (c Config) WithDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.BlocksPerQuery == 0 {
		c.BlocksPerQuery = DefaultBlocksPerQuery
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Source retrieves the announcements for a block range, ordered by
// non-decreasing (block, log index).
type Source interface {
	Fetch(ctx context.Context, startBlock, endBlock uint64) ([]umbra.Announcement, error)
}

// New builds the source selected by the chain configuration: indexer-backed
// when an indexer endpoint is configured, direct-log-backed otherwise.
func New(ctx context.Context, cfg Config) (Source, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Chain.Validate(); err != nil {
		return nil, err
	}
	if cfg.Chain.IndexerEndpoint != "" {
		return NewIndexerSource(cfg), nil
	}
	return NewLogSource(ctx, cfg)
}

// clampRange validates a requested range and clamps its start to the
// contract deployment floor. ok is false when the clamped range is empty.
func (c Config) clampRange(start, end uint64) (from, to uint64, ok bool, err error) {
	if start > end {
		return 0, 0, false, fmt.Errorf("%w: start %d > end %d", umbra.ErrSourceRange, start, end)
	}
	if start < c.Chain.StartBlock {
		start = c.Chain.StartBlock
	}
	if start > end {
		return 0, 0, false, nil
	}
	return start, end, true, nil
}

// newRetryBackoff builds the bounded exponential backoff used for sub-fetch
// retries, tied to the caller's context.
func (c Config) newRetryBackoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval
	return backoff.WithContext(backoff.WithMaxRetries(bo, c.MaxRetries), ctx)
}

// sortAnnouncements enforces the non-decreasing (block, log index) order both
// backends promise.
func sortAnnouncements(anns []umbra.Announcement) {
	sort.SliceStable(anns, func(i, j int) bool {
		if anns[i].BlockNumber != anns[j].BlockNumber {
			return anns[i].BlockNumber < anns[j].BlockNumber
		}
		return anns[i].LogIndex < anns[j].LogIndex
	})
}
