package storage

import (
	"sync"

	"xdao.co/netmap/digest"
)

// MemoryStore is an in-process Store. Values are copied in and out.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[digest.SecureHash][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: map[digest.SecureHash][]byte{}}
}

func (s *MemoryStore) Put(key digest.SecureHash, value []byte) error {
	if err := CheckKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	s.m[key] = append([]byte(nil), value...)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(key digest.SecureHash) ([]byte, error) {
	if err := CheckKey(key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Has(key digest.SecureHash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[key]
	return ok
}

func (s *MemoryStore) Keys() ([]digest.SecureHash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]digest.SecureHash, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	return out, nil
}

// MemorySink is an in-process Sink.
type MemorySink struct {
	mu  sync.RWMutex
	v   []byte
	set bool
}

var _ Sink = (*MemorySink)(nil)

func (s *MemorySink) Put(value []byte) error {
	s.mu.Lock()
	s.v = append([]byte(nil), value...)
	s.set = true
	s.mu.Unlock()
	return nil
}

func (s *MemorySink) Get() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return nil, ErrNotFound
	}
	return append([]byte(nil), s.v...), nil
}
