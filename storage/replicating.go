package storage

import (
	"fmt"

	"xdao.co/netmap/digest"
)

// NamedStore associates a Store with a stable backend name.
//
// This is used for multi-backend orchestration where callers need to retain
// per-backend metadata (e.g., for reporting or auditing).
type NamedStore struct {
	Name  string
	Store Store
}

// ReplicatingStore writes to all configured backends.
//
// Reads fall back in order. A write succeeds only once every backend has
// accepted it; the first failure is returned together with the names of the
// backends that had already been written.
//
// A failed write is not rolled back. The value stays in the backends listed
// before the failing one, and Keys (the union of all backends) reports it,
// so a key whose Put failed can still appear in later snapshots. Retrying the
// Put with the same value completes the replication.
type ReplicatingStore struct {
	Backends []NamedStore
}

var _ Store = (*ReplicatingStore)(nil)

// PutAll writes the same value to all backends and reports which accepted it.
func (r ReplicatingStore) PutAll(key digest.SecureHash, value []byte) ([]string, error) {
	if err := CheckKey(key); err != nil {
		return nil, err
	}
	if len(r.Backends) == 0 {
		return nil, fmt.Errorf("storage: ReplicatingStore has no backends")
	}
	written := make([]string, 0, len(r.Backends))
	for _, b := range r.Backends {
		if b.Store == nil {
			return written, fmt.Errorf("storage: nil store for backend %q", b.Name)
		}
		if err := b.Store.Put(key, value); err != nil {
			return written, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		written = append(written, b.Name)
	}
	return written, nil
}

func (r ReplicatingStore) Put(key digest.SecureHash, value []byte) error {
	_, err := r.PutAll(key, value)
	return err
}

func (r ReplicatingStore) Get(key digest.SecureHash) ([]byte, error) {
	for _, b := range r.Backends {
		if b.Store == nil {
			continue
		}
		out, err := b.Store.Get(key)
		if err == nil {
			return out, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (r ReplicatingStore) Has(key digest.SecureHash) bool {
	for _, b := range r.Backends {
		if b.Store != nil && b.Store.Has(key) {
			return true
		}
	}
	return false
}

func (r ReplicatingStore) Keys() ([]digest.SecureHash, error) {
	stores := make([]Store, 0, len(r.Backends))
	for _, b := range r.Backends {
		stores = append(stores, b.Store)
	}
	return unionKeys(stores)
}
