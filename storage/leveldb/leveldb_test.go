package leveldb

import (
	"path/filepath"
	"testing"

	"xdao.co/netmap/digest"
	netstore "xdao.co/netmap/storage"
	"xdao.co/netmap/storage/testkit"
)

func memDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLevelDB_Conformance(t *testing.T) {
	testkit.RunStoreConformance(t, func(t *testing.T) netstore.Store {
		return memDB(t).Store()
	})
}

func TestLevelDB_SinkConformance(t *testing.T) {
	testkit.RunSinkConformance(t, func(t *testing.T) netstore.Sink {
		return memDB(t).Sink("network-map")
	})
}

func TestLevelDB_SinkDoesNotLeakIntoKeys(t *testing.T) {
	db := memDB(t)
	if err := db.Sink("network-map").Put([]byte("published")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	keys, err := db.Store().Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("Keys = %v, want none", keys)
	}
}

func TestLevelDB_OnDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	k := digest.Of([]byte("k"))
	if err := db.Store().Put(k, []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()
	if !db.Store().Has(k) {
		t.Fatalf("key lost across reopen")
	}
}
