package keys

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// Scheme names a signature algorithm.
type Scheme string

const (
	Ed25519    Scheme = "ed25519"
	Dilithium3 Scheme = "dilithium3"
)

// SeedSize is the seed length for every supported scheme.
const SeedSize = 32

var ErrUnsupportedScheme = errors.New("keys: unsupported signature scheme")

func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(s))) {
	case Ed25519:
		return Ed25519, nil
	case Dilithium3:
		return Dilithium3, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, s)
	}
}

// PublicKeySize returns the encoded public key length for scheme.
func (s Scheme) PublicKeySize() int {
	switch s {
	case Ed25519:
		return ed25519.PublicKeySize
	case Dilithium3:
		return mode3.PublicKeySize
	default:
		return 0
	}
}

// SignatureSize returns the signature length for scheme.
func (s Scheme) SignatureSize() int {
	switch s {
	case Ed25519:
		return ed25519.SignatureSize
	case Dilithium3:
		return mode3.SignatureSize
	default:
		return 0
	}
}

// KeyPair holds a private key and its public half.
//
// The private half is never serialized; persist the seed via KeyStore instead.
type KeyPair struct {
	Scheme Scheme
	Public []byte

	seed []byte
	ed   ed25519.PrivateKey
	dil  *mode3.PrivateKey
}

// FromSeed deterministically derives a keypair for scheme.
func FromSeed(scheme Scheme, seed []byte) (*KeyPair, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("keys: seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	kp := &KeyPair{Scheme: scheme, seed: append([]byte(nil), seed...)}
	switch scheme {
	case Ed25519:
		kp.ed = ed25519.NewKeyFromSeed(seed)
		kp.Public = append([]byte(nil), kp.ed.Public().(ed25519.PublicKey)...)
	case Dilithium3:
		var s [mode3.SeedSize]byte
		copy(s[:], seed)
		pk, sk := mode3.NewKeyFromSeed(&s)
		pub, err := pk.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("keys: encode dilithium3 public key: %w", err)
		}
		kp.dil = sk
		kp.Public = pub
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return kp, nil
}

// Generate returns a fresh keypair using entropy from rand.
func Generate(scheme Scheme, rand io.Reader) (*KeyPair, error) {
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(rand, seed); err != nil {
		return nil, fmt.Errorf("keys: read seed: %w", err)
	}
	return FromSeed(scheme, seed)
}

// Seed returns a copy of the private seed.
func (k *KeyPair) Seed() []byte {
	return append([]byte(nil), k.seed...)
}

// Sign signs message as-is. Most callers want SignMessage.
func (k *KeyPair) Sign(message []byte) ([]byte, error) {
	if k == nil {
		return nil, errors.New("keys: nil keypair")
	}
	switch k.Scheme {
	case Ed25519:
		if k.ed == nil {
			return nil, errors.New("keys: missing ed25519 private key")
		}
		return ed25519.Sign(k.ed, message), nil
	case Dilithium3:
		if k.dil == nil {
			return nil, errors.New("keys: missing dilithium3 private key")
		}
		sig := make([]byte, mode3.SignatureSize)
		mode3.SignTo(k.dil, message, sig)
		return sig, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, k.Scheme)
	}
}

// Verify reports whether sig is a valid signature of message under pub.
// Malformed keys or signatures verify as false.
func Verify(scheme Scheme, pub, message, sig []byte) bool {
	switch scheme {
	case Ed25519:
		if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(pub), message, sig)
	case Dilithium3:
		if len(sig) != mode3.SignatureSize {
			return false
		}
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return false
		}
		return mode3.Verify(&pk, message, sig)
	default:
		return false
	}
}

// ValidatePublicKey checks that pub is a well-formed public key for scheme.
func ValidatePublicKey(scheme Scheme, pub []byte) error {
	switch scheme {
	case Ed25519:
		if len(pub) != ed25519.PublicKeySize {
			return fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
		}
		return nil
	case Dilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return fmt.Errorf("invalid dilithium3 public key: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
}

// PublicKeyString renders pub as "<scheme>:<base64>".
func PublicKeyString(scheme Scheme, pub []byte) string {
	return string(scheme) + ":" + base64.StdEncoding.EncodeToString(pub)
}
