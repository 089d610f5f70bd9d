package sqlite

import (
	"path/filepath"
	"testing"

	"xdao.co/netmap/digest"
	"xdao.co/netmap/storage"
	"xdao.co/netmap/storage/testkit"
)

func openDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "netmap.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLite_Conformance(t *testing.T) {
	testkit.RunStoreConformance(t, func(t *testing.T) storage.Store {
		return openDB(t).Store()
	})
}

func TestSQLite_SinkConformance(t *testing.T) {
	testkit.RunSinkConformance(t, func(t *testing.T) storage.Sink {
		return openDB(t).Sink("network-map")
	})
}

func TestSQLite_SlotsAreIndependent(t *testing.T) {
	db := openDB(t)
	m, p := db.Sink("network-map"), db.Sink("network-parameters")
	if err := m.Put([]byte("map")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := p.Get(); !storage.IsNotFound(err) {
		t.Fatalf("other slot: got err=%v want ErrNotFound", err)
	}
}

func TestSQLite_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netmap.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	k := digest.Of([]byte("persisted"))
	if err := db.Store().Put(k, []byte("bytes")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()
	got, err := db.Store().Get(k)
	if err != nil || string(got) != "bytes" {
		t.Fatalf("Get after reopen = %q, %v", got, err)
	}
}
