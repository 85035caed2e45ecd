package umbra

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/doublespending/umbra-protocol-performance/secp256k1"
)

// ScannerConfig holds configuration for Scanner initialization.
type ScannerConfig struct {
	// ViewingPrivateKey is the 0x-prefixed viewing private key used for
	// shared-secret derivation. Required.
	ViewingPrivateKey string

	// SpendingPublicKey is the 0x-prefixed compressed or uncompressed
	// spending public key that candidate stealth addresses are derived
	// from. Required.
	SpendingPublicKey string

	// TargetAddress, when set, is matched against derived addresses for
	// announcements that carry no receiver of their own.
	TargetAddress string

	// Workers bounds the per-announcement fan-out. Zero means NumCPU.
	Workers int

	// DisableViewTags skips the fast-reject tag comparison even for
	// announcements that carry a tag, forcing the full decrypt path.
	DisableViewTags bool

	Logger *slog.Logger
}

// WithDefaults returns ScannerConfig with default values applied.
func (c ScannerConfig) WithDefaults() ScannerConfig {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Scanner matches announcements against one viewing/spending key pair.
// Scanning an individual announcement is a pure function of its inputs, so a
// Scanner is safe for concurrent use and scans batches in parallel.
type Scanner struct {
	viewing  *secp256k1.KeyPair
	spending *secp256k1.KeyPair
	target   string
	workers  int
	viewTags bool
	logger   *slog.Logger
}

// NewScanner validates the caller's key material and builds a Scanner.
// Malformed viewing or spending keys fail here, never per announcement:
// there is no meaningful per-announcement result without valid caller keys.
func NewScanner(cfg ScannerConfig) (*Scanner, error) {
	cfg = cfg.WithDefaults()

	viewing, err := secp256k1.NewKeyPairFromPrivate(cfg.ViewingPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("viewing key: %w", err)
	}
	spending, err := secp256k1.NewKeyPairFromPublic(cfg.SpendingPublicKey)
	if err != nil {
		return nil, fmt.Errorf("spending key: %w", err)
	}

	return &Scanner{
		viewing:  viewing,
		spending: spending,
		target:   cfg.TargetAddress,
		workers:  cfg.Workers,
		viewTags: !cfg.DisableViewTags,
		logger:   cfg.Logger,
	}, nil
}

// Scan runs the announcement pipeline over a batch and returns one ScanResult
// per announcement, in the original order. Per-announcement failures are
// contained in that item's Diagnostic; the only errors returned here are
// context cancellation.
func (s *Scanner) Scan(ctx context.Context, anns []Announcement) ([]ScanResult, error) {
	if len(anns) == 0 {
		return nil, nil
	}

	results := make([]ScanResult, len(anns))
	workers := s.workers
	if workers > len(anns) {
		workers = len(anns)
	}

	// Fan out announcement indexes; each worker writes only its own slots,
	// so order is preserved without collection bookkeeping.
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = s.scanOne(anns[idx])
			}
		}()
	}

feed:
	for i := range anns {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matches := 0
	for i := range results {
		if results[i].IsMatch {
			matches++
		}
	}
	s.logger.Debug("scan complete",
		slog.Int("announcements", len(anns)),
		slog.Int("matches", matches),
	)
	return results, nil
}

// scanOne performs the full per-announcement pipeline: point recovery,
// shared-secret derivation, optional tag check, decryption, and stealth
// address derivation. Every failure degrades to a non-match with a
// diagnostic.
func (s *Scanner) scanOne(a Announcement) ScanResult {
	eph, err := secp256k1.RecoverUncompressedFromX(a.EphemeralPublicKeyX)
	if err != nil {
		return ScanResult{Announcement: a, Diagnostic: err}
	}

	secret := secp256k1.SharedSecretFromKeys(s.viewing.PrivateKey(), eph)

	// Cheap rejection: one extra hash instead of a second point
	// multiplication. Announcements without a transmitted tag proceed to
	// the full decrypt path.
	if s.viewTags && a.ViewTag != nil && secp256k1.ViewTag(secret) != *a.ViewTag {
		return ScanResult{Announcement: a}
	}

	ct, err := decodeCiphertext(a.Ciphertext)
	if err != nil {
		return ScanResult{Announcement: a, Diagnostic: err}
	}

	var random [32]byte
	for i := range random {
		random[i] = ct[i] ^ secret[i]
	}

	candidate, err := s.spending.DerivePublicKey(random[:])
	if err != nil {
		return ScanResult{Announcement: a, Diagnostic: err}
	}
	addr, err := candidate.Address()
	if err != nil {
		return ScanResult{Announcement: a, Diagnostic: err}
	}

	res := ScanResult{Announcement: a, DerivedAddress: addr}
	switch {
	case a.Receiver != "":
		res.IsMatch = strings.EqualFold(addr, a.Receiver)
	case s.target != "":
		res.IsMatch = strings.EqualFold(addr, s.target)
	}
	return res
}

// Scan is a convenience wrapper that builds a Scanner with default settings
// and scans one batch.
func Scan(ctx context.Context, viewingPrivateKey, spendingPublicKey string, anns []Announcement) ([]ScanResult, error) {
	s, err := NewScanner(ScannerConfig{
		ViewingPrivateKey: viewingPrivateKey,
		SpendingPublicKey: spendingPublicKey,
	})
	if err != nil {
		return nil, err
	}
	return s.Scan(ctx, anns)
}

// decodeCiphertext decodes the fixed-width 32-byte announcement payload.
func decodeCiphertext(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") {
		return nil, fmt.Errorf("%w: missing 0x prefix", ErrInvalidCiphertext)
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: want 32 bytes, got %d", ErrInvalidCiphertext, len(b))
	}
	return b, nil
}
