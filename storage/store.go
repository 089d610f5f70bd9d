// Package storage defines the durable store and publication sink contracts
// the registry and builder depend on, plus composites over several backends.
package storage

import "xdao.co/netmap/digest"

// Store is a durable key-value store keyed by payload hash.
//
// Contract:
// - Put MUST be durable and visible to Get/Has/Keys once it returns.
// - Put under an existing key replaces the value (last writer wins).
// - Get MUST return ErrNotFound when the key is absent.
// - Keys returns every stored key; order is unspecified.
// - Implementations MUST be safe for concurrent use.
type Store interface {
	Put(key digest.SecureHash, value []byte) error
	Get(key digest.SecureHash) ([]byte, error)
	Has(key digest.SecureHash) bool
	Keys() ([]digest.SecureHash, error)
}

// Sink is a single-slot store holding the latest published document.
//
// Put replaces the slot wholesale. Get returns ErrNotFound until the first Put.
type Sink interface {
	Put(value []byte) error
	Get() ([]byte, error)
}

// CheckKey rejects the zero hash, which never names a stored payload.
func CheckKey(key digest.SecureHash) error {
	if key.IsZero() {
		return ErrInvalidKey
	}
	return nil
}
