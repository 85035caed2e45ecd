package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cenkalti/backoff/v4"

	umbra "github.com/doublespending/umbra-protocol-performance"
)

// APIError represents an indexer API error response.
type APIError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("indexer error (HTTP %d)", e.StatusCode)
	}
	return fmt.Sprintf("indexer error (HTTP %d): %s", e.StatusCode, e.Body)
}

// retryable reports whether the response status is worth retrying.
// Client errors other than rate limiting are permanent.
func (e *APIError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// announcementRecord is the indexer's wire representation of one
// announcement.
type announcementRecord struct {
	Receiver   string `json:"receiver"`
	Amount     string `json:"amount"`
	Token      string `json:"token"`
	PKX        string `json:"pkx"`
	Ciphertext string `json:"ciphertext"`
	Block      uint64 `json:"block"`
	TxIndex    uint   `json:"txIndex"`
	LogIndex   uint   `json:"logIndex"`
}

// announcementsPage is one page of indexer results.
type announcementsPage struct {
	Items []announcementRecord `json:"items"`
}

// IndexerSource fetches announcements from a remote indexing service scoped
// to the announcement contract. Pages are requested with limit/offset until a
// short page signals the end of the range.
type IndexerSource struct {
	baseURL    string
	contract   string
	chainID    uint64
	pageSize   int
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewIndexerSource builds an indexer-backed source.
func NewIndexerSource(cfg Config) *IndexerSource {
	cfg = cfg.WithDefaults()
	return &IndexerSource{
		baseURL:    cfg.Chain.IndexerEndpoint,
		contract:   cfg.Chain.ContractAddress,
		chainID:    cfg.Chain.ChainID,
		pageSize:   cfg.PageSize,
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     cfg.Logger,
	}
}

// Fetch implements Source.
func (s *IndexerSource) Fetch(ctx context.Context, startBlock, endBlock uint64) ([]umbra.Announcement, error) {
	from, to, ok, err := s.cfg.clampRange(startBlock, endBlock)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var out []umbra.Announcement
	for offset := 0; ; offset += s.pageSize {
		page, err := s.fetchPage(ctx, from, to, offset)
		if err != nil {
			return nil, umbra.NewFetchError(from, to, len(out) > 0, err)
		}
		for _, rec := range page.Items {
			ann, err := rec.toAnnouncement()
			if err != nil {
				return nil, umbra.NewFetchError(from, to, len(out) > 0, err)
			}
			out = append(out, ann)
		}
		if len(page.Items) < s.pageSize {
			break
		}
	}

	sortAnnouncements(out)
	s.logger.Debug("indexer fetch complete",
		slog.Uint64("from", from),
		slog.Uint64("to", to),
		slog.Int("announcements", len(out)),
	)
	return out, nil
}

// fetchPage requests one page, retrying transient failures with bounded
// backoff.
func (s *IndexerSource) fetchPage(ctx context.Context, from, to uint64, offset int) (*announcementsPage, error) {
	q := url.Values{}
	q.Set("contract", s.contract)
	q.Set("chainId", strconv.FormatUint(s.chainID, 10))
	q.Set("fromBlock", strconv.FormatUint(from, 10))
	q.Set("toBlock", strconv.FormatUint(to, 10))
	q.Set("limit", strconv.Itoa(s.pageSize))
	q.Set("offset", strconv.Itoa(offset))
	reqURL := s.baseURL + "/announcements?" + q.Encode()

	var page announcementsPage
	op := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()

		err := s.getJSON(reqCtx, reqURL, &page)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: %v", umbra.ErrSourceTimeout, err)
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, s.cfg.newRetryBackoff(ctx)); err != nil {
		return nil, err
	}
	return &page, nil
}

// getJSON performs a GET request and decodes a JSON response body.
func (s *IndexerSource) getJSON(ctx context.Context, reqURL string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// toAnnouncement converts the wire record to the scan engine's shape.
func (r announcementRecord) toAnnouncement() (umbra.Announcement, error) {
	amount := new(big.Int)
	if r.Amount != "" {
		if _, ok := amount.SetString(r.Amount, 10); !ok {
			return umbra.Announcement{}, fmt.Errorf("invalid amount %q", r.Amount)
		}
	}
	return umbra.Announcement{
		Receiver:            r.Receiver,
		Amount:              amount,
		Token:               r.Token,
		EphemeralPublicKeyX: r.PKX,
		Ciphertext:          r.Ciphertext,
		BlockNumber:         r.Block,
		TxIndex:             r.TxIndex,
		LogIndex:            r.LogIndex,
	}, nil
}
