package secp256k1

import "errors"

// Sentinel errors - Key material
var (
	ErrInvalidPrivateKey = errors.New("secp256k1: invalid private key")
	ErrInvalidPublicKey  = errors.New("secp256k1: invalid public key")
	ErrMissingPublicKey  = errors.New("secp256k1: key pair holds no public key")
)

// Sentinel errors - Curve operations
var (
	ErrPointNotOnCurve     = errors.New("secp256k1: point not on curve")
	ErrPointRecoveryFailed = errors.New("secp256k1: no curve point for x-coordinate")
	ErrInvalidScalar       = errors.New("secp256k1: scalar out of range")
)
