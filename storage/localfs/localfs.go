// Package localfs stores node infos as one file per hash and publishes
// documents by atomically replacing a single file.
package localfs

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"xdao.co/netmap/digest"
	"xdao.co/netmap/storage"
)

// Store is a local filesystem-backed storage.Store.
//
// Values live at <root>/<hex[:2]>/<hex>. Writes go through a temporary file
// and a rename, so readers never observe a partially written value and
// concurrent writers of the same key leave exactly one of their values behind.
type Store struct {
	root string
}

var _ storage.Store = (*Store)(nil)

// New constructs a filesystem store rooted at root. The directory will be created if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) Put(key digest.SecureHash, value []byte) error {
	if err := storage.CheckKey(key); err != nil {
		return err
	}
	path := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(value))
}

func (s *Store) Get(key digest.SecureHash) ([]byte, error) {
	if err := storage.CheckKey(key); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *Store) Has(key digest.SecureHash) bool {
	if key.IsZero() {
		return false
	}
	_, err := os.Stat(s.pathFor(key))
	return err == nil
}

// Keys walks the store directory. Files whose names are not hashes, such as
// leftovers of interrupted writes, are ignored.
func (s *Store) Keys() ([]digest.SecureHash, error) {
	var out []digest.SecureHash
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if len(name) != 2*len(digest.SecureHash{}) {
			return nil
		}
		h, err := digest.Parse(name)
		if err != nil || filepath.Base(filepath.Dir(path)) != name[:2] {
			return nil
		}
		out = append(out, h)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) pathFor(key digest.SecureHash) string {
	h := key.String()
	return filepath.Join(s.root, h[:2], h)
}

// Sink publishes into a single file, replaced atomically on every Put.
type Sink struct {
	path string
}

var _ storage.Sink = (*Sink)(nil)

// NewSink returns a sink writing to path. Parent directories are created.
func NewSink(path string) (*Sink, error) {
	if path == "" {
		return nil, errors.New("localfs: sink path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Sink{path: path}, nil
}

func (s *Sink) Put(value []byte) error {
	return atomic.WriteFile(s.path, bytes.NewReader(value))
}

func (s *Sink) Get() ([]byte, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return b, nil
}
