// Package leveldb stores node infos in a LevelDB database under a key prefix.
package leveldb

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"xdao.co/netmap/digest"
	netstore "xdao.co/netmap/storage"
)

// Prefixes separating the namespaces sharing one database.
var (
	nodeInfoPrefix  = []byte("n/")
	publishedPrefix = []byte("p/")
)

// DB wraps a LevelDB handle.
type DB struct {
	db *leveldb.DB
	wo *opt.WriteOptions
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*DB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &DB{db: db, wo: &opt.WriteOptions{Sync: true}}, nil
}

// OpenMemory opens a database that lives only in memory.
func OpenMemory() (*DB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &DB{db: db, wo: &opt.WriteOptions{}}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Store returns the node info namespace as a storage.Store.
func (d *DB) Store() *Store {
	return &Store{db: d}
}

// Sink returns the publication slot named slot.
func (d *DB) Sink(slot string) *Sink {
	return &Sink{db: d, key: append(append([]byte(nil), publishedPrefix...), slot...)}
}

func mapErr(err error) error {
	if errors.Is(err, leveldb.ErrNotFound) {
		return netstore.ErrNotFound
	}
	return err
}

// Store implements storage.Store.
type Store struct {
	db *DB
}

var _ netstore.Store = (*Store)(nil)

func nodeKey(key digest.SecureHash) []byte {
	return append(append(make([]byte, 0, len(nodeInfoPrefix)+len(key)), nodeInfoPrefix...), key[:]...)
}

func (s *Store) Put(key digest.SecureHash, value []byte) error {
	if err := netstore.CheckKey(key); err != nil {
		return err
	}
	return s.db.db.Put(nodeKey(key), value, s.db.wo)
}

func (s *Store) Get(key digest.SecureHash) ([]byte, error) {
	if err := netstore.CheckKey(key); err != nil {
		return nil, err
	}
	v, err := s.db.db.Get(nodeKey(key), nil)
	if err != nil {
		return nil, mapErr(err)
	}
	return v, nil
}

func (s *Store) Has(key digest.SecureHash) bool {
	if key.IsZero() {
		return false
	}
	ok, err := s.db.db.Has(nodeKey(key), nil)
	return err == nil && ok
}

func (s *Store) Keys() ([]digest.SecureHash, error) {
	it := s.db.db.NewIterator(util.BytesPrefix(nodeInfoPrefix), nil)
	defer it.Release()
	var out []digest.SecureHash
	for it.Next() {
		h, err := digest.FromBytes(it.Key()[len(nodeInfoPrefix):])
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, it.Error()
}

// Sink implements storage.Sink.
type Sink struct {
	db  *DB
	key []byte
}

var _ netstore.Sink = (*Sink)(nil)

func (s *Sink) Put(value []byte) error {
	return s.db.db.Put(s.key, value, s.db.wo)
}

func (s *Sink) Get() ([]byte, error) {
	v, err := s.db.db.Get(s.key, nil)
	if err != nil {
		return nil, mapErr(err)
	}
	return v, nil
}
