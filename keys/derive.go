package keys

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// DeriveRoleSeed deterministically derives a role-specific seed from a root seed.
//
// The development root and the keys issued beneath it in tests are derived
// this way, so they are stable across processes.
func DeriveRoleSeed(rootSeed []byte, role string) ([]byte, error) {
	if len(rootSeed) != SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", SeedSize)
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}

	h := sha256.New()
	_, _ = h.Write(rootSeed)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("xdao-netmap-kdf-v1"))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("role:"))
	_, _ = h.Write([]byte(role))
	sum := h.Sum(nil)
	if len(sum) < SeedSize {
		return nil, errors.New("kdf output too short")
	}
	out := make([]byte, SeedSize)
	copy(out, sum[:SeedSize])
	return out, nil
}
