package umbra

import (
	"errors"
	"fmt"
)

// Sentinel errors - Configuration
var (
	ErrMissingContractAddress = errors.New("umbra: contract address is required")
	ErrMissingEndpoint        = errors.New("umbra: rpc url or indexer endpoint is required")
)

// Sentinel errors - Scanning
var (
	ErrInvalidCiphertext = errors.New("umbra: invalid ciphertext")
	// ErrDecryptMismatch is reserved for protocol variants that transmit an
	// explicit integrity tag alongside the ciphertext.
	ErrDecryptMismatch = errors.New("umbra: ciphertext integrity check failed")
)

// Sentinel errors - Announcement source
var (
	ErrSourceTimeout = errors.New("umbra: announcement source timed out")
	ErrSourceRange   = errors.New("umbra: invalid block range")
)

// FetchError reports a failed announcement fetch. Partial distinguishes
// "some sub-ranges completed before the failure" from "no results available".
type FetchError struct {
	FromBlock uint64
	ToBlock   uint64
	Partial   bool
	Err       error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Partial {
		return fmt.Sprintf("fetch blocks %d-%d failed (partial results discarded): %v", e.FromBlock, e.ToBlock, e.Err)
	}
	return fmt.Sprintf("fetch blocks %d-%d failed: %v", e.FromBlock, e.ToBlock, e.Err)
}

// Unwrap implements the errors.Unwrap interface for error chaining.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError wraps a source failure with its block range context.
func NewFetchError(from, to uint64, partial bool, err error) *FetchError {
	return &FetchError{FromBlock: from, ToBlock: to, Partial: partial, Err: err}
}
