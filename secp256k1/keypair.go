package secp256k1

import (
	"encoding/hex"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
)

// KeyPair wraps secp256k1 key material for stealth derivation. It holds a
// private key, a public key, or both; the public key is always populated when
// the private key is present. A KeyPair is immutable after construction and
// derived values (address) are computed lazily and cached, so it is safe for
// concurrent use.
type KeyPair struct {
	priv *btcec.PrivateKey
	pub  *btcec.PublicKey

	addrOnce sync.Once
	addr     string
	addrErr  error
}

// NewKeyPairFromPrivate constructs a KeyPair from a 0x-prefixed private key.
// The public key is derived immediately.
func NewKeyPairFromPrivate(privHex string) (*KeyPair, error) {
	priv, err := ParsePrivateKey(privHex)
	if err != nil {
		return nil, err
	}
	return &KeyPair{priv: priv, pub: priv.PubKey()}, nil
}

// NewKeyPairFromPublic constructs a KeyPair from a 0x-prefixed compressed or
// uncompressed public key. The resulting pair holds no private key.
func NewKeyPairFromPublic(pubHex string) (*KeyPair, error) {
	pub, err := ParsePublicKey(pubHex)
	if err != nil {
		return nil, err
	}
	return &KeyPair{pub: pub}, nil
}

// newKeyPairFromPubKey wraps an already-parsed public key.
func newKeyPairFromPubKey(pub *btcec.PublicKey) *KeyPair {
	return &KeyPair{pub: pub}
}

// HasPrivate reports whether the pair holds a private key.
func (k *KeyPair) HasPrivate() bool {
	return k.priv != nil
}

// PrivateKey returns the held private key, or nil.
func (k *KeyPair) PrivateKey() *btcec.PrivateKey {
	return k.priv
}

// PublicKey returns the held public key, or nil for a zero-value KeyPair.
func (k *KeyPair) PublicKey() *btcec.PublicKey {
	return k.pub
}

// CompressedHex returns the 33-byte compressed public key as 0x-prefixed hex.
func (k *KeyPair) CompressedHex() (string, error) {
	if k.pub == nil {
		return "", ErrMissingPublicKey
	}
	return "0x" + hex.EncodeToString(k.pub.SerializeCompressed()), nil
}

// UncompressedHex returns the 65-byte uncompressed public key as 0x-prefixed
// hex.
func (k *KeyPair) UncompressedHex() (string, error) {
	if k.pub == nil {
		return "", ErrMissingPublicKey
	}
	return "0x" + hex.EncodeToString(k.pub.SerializeUncompressed()), nil
}

// DerivePublicKey scalar-multiplies the held public key by a 32-byte scalar
// and returns a new KeyPair holding only the resulting public key. This is
// the stealth derivation step: multiplying the spending public key by the
// decrypted random number yields the one-time spend key.
func (k *KeyPair) DerivePublicKey(scalar []byte) (*KeyPair, error) {
	if k.pub == nil {
		return nil, ErrMissingPublicKey
	}
	derived, err := ScalarMult(k.pub, scalar)
	if err != nil {
		return nil, err
	}
	return newKeyPairFromPubKey(derived), nil
}

// Address returns the EIP-55 checksummed Ethereum address of the public key.
// The address is computed once and cached.
func (k *KeyPair) Address() (string, error) {
	k.addrOnce.Do(func() {
		if k.pub == nil {
			k.addrErr = ErrMissingPublicKey
			return
		}
		k.addr = formatEthereumAddress(deriveEthereumAddress(k.pub))
	})
	return k.addr, k.addrErr
}
