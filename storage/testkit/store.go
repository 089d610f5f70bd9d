// Package testkit holds conformance suites every storage backend must pass.
package testkit

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"xdao.co/netmap/digest"
	"xdao.co/netmap/storage"
)

// NewStore constructs a fresh, empty Store instance for a test.
// The returned Store MUST be isolated from other tests.
type NewStore func(t *testing.T) storage.Store

// NewSink constructs a fresh, empty Sink instance for a test.
type NewSink func(t *testing.T) storage.Sink

func key(s string) digest.SecureHash { return digest.Of([]byte(s)) }

func RunStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		k, want := key("alice"), []byte("signed node info for alice")

		if err := s.Put(k, want); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get(k)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
		// Callers may scribble on returned buffers.
		got[0] ^= 0xff
		again, err := s.Get(k)
		if err != nil || !bytes.Equal(again, want) {
			t.Fatalf("stored value changed through returned slice")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		s := newStore(t)
		k, v := key("same"), []byte("same bytes")
		for i := 0; i < 3; i++ {
			if err := s.Put(k, v); err != nil {
				t.Fatalf("Put(%d) failed: %v", i, err)
			}
		}
		keys, err := s.Keys()
		if err != nil {
			t.Fatalf("Keys failed: %v", err)
		}
		if len(keys) != 1 || keys[0] != k {
			t.Fatalf("Keys = %v, want [%s]", keys, k)
		}
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		s := newStore(t)
		k := key("rewritten")
		if err := s.Put(k, []byte("first")); err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		if err := s.Put(k, []byte("second")); err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		got, err := s.Get(k)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != "second" {
			t.Fatalf("Get = %q, want last write", got)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		s := newStore(t)
		k := key("missing")

		if s.Has(k) {
			t.Fatalf("Has returned true for missing key")
		}
		_, err := s.Get(k)
		if !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}
		if err := s.Put(k, []byte("now present")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !s.Has(k) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("KeysListsEverything", func(t *testing.T) {
		s := newStore(t)
		keys, err := s.Keys()
		if err != nil {
			t.Fatalf("Keys on empty store failed: %v", err)
		}
		if len(keys) != 0 {
			t.Fatalf("empty store has keys %v", keys)
		}
		want := make([]digest.SecureHash, 0, 20)
		for i := 0; i < 20; i++ {
			k := key(fmt.Sprintf("node-%d", i))
			want = append(want, k)
			if err := s.Put(k, []byte{byte(i)}); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
		}
		got, err := s.Keys()
		if err != nil {
			t.Fatalf("Keys failed: %v", err)
		}
		digest.Sort(got)
		digest.Sort(want)
		if len(got) != len(want) {
			t.Fatalf("Keys returned %d keys, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("Keys[%d] = %s, want %s", i, got[i], want[i])
			}
		}
	})

	t.Run("RejectZeroKey", func(t *testing.T) {
		s := newStore(t)
		if s.Has(digest.Zero) {
			t.Fatalf("Has should be false for the zero key")
		}
		if err := s.Put(digest.Zero, []byte("x")); err == nil {
			t.Fatalf("Put should fail for the zero key")
		}
		if _, err := s.Get(digest.Zero); err == nil {
			t.Fatalf("Get should fail for the zero key")
		}
	})

	t.Run("ConcurrentSameKey", func(t *testing.T) {
		s := newStore(t)
		k, v := key("raced"), []byte("identical content")
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Put(k, v)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("concurrent Put failed: %v", err)
			}
		}
		got, err := s.Get(k)
		if err != nil || !bytes.Equal(got, v) {
			t.Fatalf("Get after concurrent Put: %q, %v", got, err)
		}
	})
}

func RunSinkConformance(t *testing.T, newSink NewSink) {
	t.Helper()

	t.Run("EmptyIsNotFound", func(t *testing.T) {
		s := newSink(t)
		if _, err := s.Get(); !storage.IsNotFound(err) {
			t.Fatalf("Get on empty sink: got err=%v want ErrNotFound", err)
		}
	})

	t.Run("LatestWins", func(t *testing.T) {
		s := newSink(t)
		for _, v := range []string{"map-1", "map-2", "map-3"} {
			if err := s.Put([]byte(v)); err != nil {
				t.Fatalf("Put(%s) failed: %v", v, err)
			}
		}
		got, err := s.Get()
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != "map-3" {
			t.Fatalf("Get = %q, want map-3", got)
		}
	})

	t.Run("ShorterReplacesLonger", func(t *testing.T) {
		s := newSink(t)
		if err := s.Put(bytes.Repeat([]byte("x"), 4096)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := s.Put([]byte("y")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get()
		if err != nil || string(got) != "y" {
			t.Fatalf("Get = %q, %v", got, err)
		}
	})
}
