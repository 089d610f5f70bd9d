package storage

import (
	"errors"

	"xdao.co/netmap/digest"
)

// MultiStore provides deterministic, ordered fallback across multiple stores.
//
// Read order is the slice order in Adapters; callers MUST supply a fixed order.
// This avoids map-iteration nondeterminism and makes the retrieval strategy explicit.
//
// Put is defined to write only to the first adapter.
type MultiStore struct {
	Adapters []Store
}

var _ Store = MultiStore{}

func (m MultiStore) Put(key digest.SecureHash, value []byte) error {
	if len(m.Adapters) == 0 {
		return errors.New("storage: MultiStore has no adapters")
	}
	return m.Adapters[0].Put(key, value)
}

func (m MultiStore) Get(key digest.SecureHash) ([]byte, error) {
	for _, s := range m.Adapters {
		b, err := s.Get(key)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (m MultiStore) Has(key digest.SecureHash) bool {
	for _, s := range m.Adapters {
		if s.Has(key) {
			return true
		}
	}
	return false
}

// Keys returns the union of every adapter's keys.
func (m MultiStore) Keys() ([]digest.SecureHash, error) {
	return unionKeys(m.Adapters)
}

func unionKeys(stores []Store) ([]digest.SecureHash, error) {
	var all []digest.SecureHash
	for _, s := range stores {
		if s == nil {
			continue
		}
		ks, err := s.Keys()
		if err != nil {
			return nil, err
		}
		all = append(all, ks...)
	}
	return digest.SortedUnique(all), nil
}
