package keys

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Supported digest algorithms.
const (
	SHA256   = "sha256"
	SHA512   = "sha512"
	SHA3_256 = "sha3-256"
)

// DefaultHashAlg is used when callers do not choose one.
const DefaultHashAlg = SHA256

// Digest returns hashAlg(message).
func Digest(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case SHA256:
		s := sha256.Sum256(message)
		return s[:], nil
	case SHA512:
		s := sha512.Sum512(message)
		return s[:], nil
	case SHA3_256:
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %q", hashAlg)
	}
}

// SignMessage returns a signature over hashAlg(message).
func (k *KeyPair) SignMessage(hashAlg string, message []byte) ([]byte, error) {
	d, err := Digest(hashAlg, message)
	if err != nil {
		return nil, err
	}
	return k.Sign(d)
}

// VerifyMessage reports whether sig covers hashAlg(message) under pub.
func VerifyMessage(scheme Scheme, pub []byte, hashAlg string, message, sig []byte) bool {
	d, err := Digest(hashAlg, message)
	if err != nil {
		return false
	}
	return Verify(scheme, pub, d, sig)
}
