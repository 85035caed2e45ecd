// Package umbra implements the scanning core of an Umbra-style stealth
// payment protocol on secp256k1. Given a viewing private key and a stream of
// on-chain announcements, it determines which announcements belong to the key
// holder and recovers the one-time spending address for each match.
package umbra

import "math/big"

// Announcement is one on-chain stealth payment record: the x-coordinate of
// the sender's ephemeral public key paired with the encrypted random number,
// plus the event metadata needed for ordering and matching. Announcements are
// consumed read-only by the scan engine.
type Announcement struct {
	// Receiver is the stealth address the payment was sent to. When present,
	// a scan matches an announcement by comparing the derived address
	// against it; when empty the engine reports every derived candidate and
	// the caller matches externally.
	Receiver string

	// Amount and Token describe the transferred asset as emitted on chain.
	Amount *big.Int
	Token  string

	// EphemeralPublicKeyX is the 0x-prefixed 32-byte x-coordinate of the
	// ephemeral public key. The full point is recovered during scanning
	// using the even-y convention.
	EphemeralPublicKeyX string

	// Ciphertext is the 0x-prefixed 32-byte encrypted random number.
	Ciphertext string

	BlockNumber uint64
	TxIndex     uint
	LogIndex    uint

	// ViewTag, when non-nil, carries the single-byte fast-reject tag derived
	// from the shared secret. The on-chain wire format does not transmit
	// one, so sources leave it nil and scanning proceeds to full decryption.
	ViewTag *byte
}

// ScanResult is the outcome of scanning a single announcement.
type ScanResult struct {
	Announcement Announcement

	// IsMatch reports whether the derived address equals the announcement's
	// receiver (or the scanner's target address when configured).
	IsMatch bool

	// DerivedAddress is the candidate one-time spending address. Set
	// whenever the decrypt-and-derive pipeline completed, match or not.
	DerivedAddress string

	// Diagnostic carries the per-announcement failure that degraded this
	// result to a non-match, nil for cleanly scanned announcements.
	Diagnostic error
}

// ChainConfig selects the chain, announcement contract, and announcement
// source backend. It is owned by the caller and passed by reference.
type ChainConfig struct {
	ChainID         uint64
	ContractAddress string

	// StartBlock is the block the announcement contract was deployed at;
	// fetches below it are clamped to this floor.
	StartBlock uint64

	// RPCURL is the chain node endpoint used by the direct-log backend.
	RPCURL string

	// IndexerEndpoint selects the indexer-backed source when non-empty;
	// when empty, fetching falls back to direct chain-log queries.
	IndexerEndpoint string
}

// Validate checks required ChainConfig fields.
func (c *ChainConfig) Validate() error {
	if c.ContractAddress == "" {
		return ErrMissingContractAddress
	}
	if c.RPCURL == "" && c.IndexerEndpoint == "" {
		return ErrMissingEndpoint
	}
	return nil
}
