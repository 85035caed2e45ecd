// Package secp256k1 implements the curve-level primitives of the stealth
// payment protocol: key validation, compressed-point recovery from bare
// x-coordinates, scalar multiplication, ECDH shared-secret derivation, and
// Ethereum address computation.
package secp256k1

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/sha3"
)

// Hex encoding lengths, including the 0x prefix.
const (
	PrivateKeyHexLen      = 66  // 0x + 32 bytes
	CoordinateHexLen      = 66  // 0x + 32 bytes
	CompressedKeyHexLen   = 68  // 0x + parity byte + 32 bytes
	UncompressedKeyHexLen = 132 // 0x + 0x04 byte + 64 bytes
)

// decodeHex decodes a 0x-prefixed hex string into exactly wantLen bytes.
func decodeHex(s string, wantLen int) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") {
		return nil, fmt.Errorf("missing 0x prefix")
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != wantLen {
		return nil, fmt.Errorf("want %d bytes, got %d", wantLen, len(b))
	}
	return b, nil
}

// ValidatePrivateKey checks that s is a 0x-prefixed 32-byte hex scalar
// numerically within (0, N) where N is the curve order.
func ValidatePrivateKey(s string) error {
	b, err := decodeHex(s, 32)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	var k btcec.ModNScalar
	if overflow := k.SetByteSlice(b); overflow {
		return fmt.Errorf("%w: scalar >= curve order", ErrInvalidPrivateKey)
	}
	if k.IsZero() {
		return fmt.Errorf("%w: scalar is zero", ErrInvalidPrivateKey)
	}
	return nil
}

// ParsePrivateKey validates and decodes a 0x-prefixed private key.
func ParsePrivateKey(s string) (*btcec.PrivateKey, error) {
	if err := ValidatePrivateKey(s); err != nil {
		return nil, err
	}
	b, _ := decodeHex(s, 32)
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv, nil
}

// ValidatePublicKey checks that s is a 0x-prefixed compressed (33-byte) or
// uncompressed (65-byte) public key whose point satisfies the curve equation.
func ValidatePublicKey(s string) error {
	_, err := ParsePublicKey(s)
	return err
}

// ParsePublicKey decodes a 0x-prefixed public key in compressed or
// uncompressed form. Points that fail the curve equation are rejected with
// ErrPointNotOnCurve before any further use.
func ParsePublicKey(s string) (*btcec.PublicKey, error) {
	if !strings.HasPrefix(s, "0x") {
		return nil, fmt.Errorf("%w: missing 0x prefix", ErrInvalidPublicKey)
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex: %v", ErrInvalidPublicKey, err)
	}
	if len(b) != 33 && len(b) != 65 {
		return nil, fmt.Errorf("%w: want 33 or 65 bytes, got %d", ErrInvalidPublicKey, len(b))
	}
	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPointNotOnCurve, err)
	}
	return pub, nil
}

// RecoverUncompressedFromX recovers the full public key from a bare
// x-coordinate as emitted by on-chain announcements. The even-y candidate is
// selected, matching the parity convention used when the ephemeral key was
// compressed on write.
func RecoverUncompressedFromX(xHex string) (*btcec.PublicKey, error) {
	x, err := decodeHex(xHex, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPointRecoveryFailed, err)
	}
	compressed := make([]byte, 33)
	compressed[0] = 0x02 // even y
	copy(compressed[1:], x)
	pub, err := btcec.ParsePubKey(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPointRecoveryFailed, err)
	}
	return pub, nil
}

// ScalarMult multiplies a public key point by a 32-byte scalar.
// The scalar must be within (0, N).
func ScalarMult(pub *btcec.PublicKey, scalar []byte) (*btcec.PublicKey, error) {
	if len(scalar) != 32 {
		return nil, fmt.Errorf("%w: want 32 bytes, got %d", ErrInvalidScalar, len(scalar))
	}
	var k btcec.ModNScalar
	if overflow := k.SetByteSlice(scalar); overflow {
		return nil, fmt.Errorf("%w: scalar >= curve order", ErrInvalidScalar)
	}
	if k.IsZero() {
		return nil, fmt.Errorf("%w: scalar is zero", ErrInvalidScalar)
	}

	var point, result btcec.JacobianPoint
	pub.AsJacobian(&point)
	btcec.ScalarMultNonConst(&k, &point, &result)
	result.ToAffine()
	return btcec.NewPublicKey(&result.X, &result.Y), nil
}

// SharedSecretFromKeys derives the 32-byte ECDH shared secret for a private
// and public key. The secret is Keccak-256 over the 64-byte X||Y payload of
// the uncompressed ECDH point, so it is byte-identical whether the public key
// was supplied compressed, uncompressed, or recovered from a bare
// x-coordinate.
func SharedSecretFromKeys(priv *btcec.PrivateKey, pub *btcec.PublicKey) []byte {
	var point, result btcec.JacobianPoint
	pub.AsJacobian(&point)
	btcec.ScalarMultNonConst(&priv.Key, &point, &result)
	result.ToAffine()
	result.X.Normalize()
	result.Y.Normalize()

	var payload [64]byte
	result.X.PutBytesUnchecked(payload[0:32])
	result.Y.PutBytesUnchecked(payload[32:64])
	return hashKeccak256(payload[:])
}

// SharedSecret derives the shared secret from hex-encoded key material.
// Both inputs are validated before any curve work begins.
func SharedSecret(privHex, pubHex string) ([]byte, error) {
	priv, err := ParsePrivateKey(privHex)
	if err != nil {
		return nil, err
	}
	pub, err := ParsePublicKey(pubHex)
	if err != nil {
		return nil, err
	}
	return SharedSecretFromKeys(priv, pub), nil
}

// ViewTag hashes a shared secret once more into the single-byte tag used for
// cheap rejection of non-matching announcements.
func ViewTag(secret []byte) byte {
	return hashKeccak256(secret)[0]
}

// hashKeccak256 computes Keccak-256 (Ethereum).
func hashKeccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// deriveEthereumAddress derives a 20-byte Ethereum address from a public key.
// Formula: Keccak256(uncompressed_pubkey[1:])[12:32]
func deriveEthereumAddress(pub *btcec.PublicKey) []byte {
	uncompressed := pub.SerializeUncompressed()
	hash := hashKeccak256(uncompressed[1:])
	return hash[12:]
}

// formatEthereumAddress formats a 20-byte address as a checksummed hex string.
// Implements EIP-55 checksum encoding.
func formatEthereumAddress(addr []byte) string {
	if len(addr) != 20 {
		return ""
	}

	hexAddr := hex.EncodeToString(addr)
	hash := hashKeccak256([]byte(hexAddr))

	// Uppercase a hex letter when the corresponding hash nibble is >= 8.
	result := make([]byte, 40)
	for i := 0; i < 40; i++ {
		hashNibble := hash[i/2]
		if i%2 == 0 {
			hashNibble = hashNibble >> 4
		} else {
			hashNibble = hashNibble & 0x0f
		}

		if hashNibble >= 8 && hexAddr[i] >= 'a' && hexAddr[i] <= 'f' {
			result[i] = hexAddr[i] - 32
		} else {
			result[i] = hexAddr[i]
		}
	}

	return "0x" + string(result)
}
