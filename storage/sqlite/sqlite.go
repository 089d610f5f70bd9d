// Package sqlite keeps node infos and published documents in SQLite tables.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"xdao.co/netmap/digest"
	"xdao.co/netmap/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodeinfo (
	hash BLOB NOT NULL PRIMARY KEY,
	value BLOB NOT NULL,
	updated INTEGER NOT NULL
) WITHOUT ROWID;
CREATE TABLE IF NOT EXISTS published (
	slot TEXT NOT NULL PRIMARY KEY,
	value BLOB NOT NULL,
	updated INTEGER NOT NULL
);
`

// DB is an open SQLite database holding the node info table and any number
// of publication slots.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at fileName.
func Open(fileName string) (*DB, error) {
	db, err := sql.Open("sqlite3", fileName)
	if err != nil {
		return nil, dbErr(err, "opening database")
	}
	// One connection serializes writers; SQLite would otherwise return
	// SQLITE_BUSY under concurrent submissions.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, dbErr(err, "creating database schema")
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Store returns the node info table as a storage.Store.
func (d *DB) Store() *Store {
	return &Store{db: d}
}

// Sink returns the publication slot named slot.
func (d *DB) Sink(slot string) *Sink {
	return &Sink{db: d, slot: slot}
}

func IsConflict(err error) bool {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked
	}
	return false
}

func (d *DB) doTxn(name string, work func(tx *sql.Tx) error) error {
	limit := 40
	for {
		err := d.tryTxn(work)
		if err == nil {
			return nil
		}
		if IsConflict(err) && limit > 0 {
			limit--
			time.Sleep(50 * time.Millisecond)
			continue
		}
		return dbErr(err, name)
	}
}

func (d *DB) tryTxn(work func(tx *sql.Tx) error) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := work(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func dbErr(err error, where string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return fmt.Errorf("sqlite: %s: %w", where, err)
}

// Store implements storage.Store over the nodeinfo table.
type Store struct {
	db *DB
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Put(key digest.SecureHash, value []byte) error {
	if err := storage.CheckKey(key); err != nil {
		return err
	}
	return s.db.doTxn("put nodeinfo", func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO nodeinfo (hash, value, updated) VALUES (?, ?, ?)
			ON CONFLICT (hash) DO UPDATE SET value = excluded.value, updated = excluded.updated`,
			key[:], value, time.Now().Unix())
		return err
	})
}

func (s *Store) Get(key digest.SecureHash) ([]byte, error) {
	if err := storage.CheckKey(key); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.db.QueryRow("SELECT value FROM nodeinfo WHERE hash = ?", key[:]).Scan(&value)
	if err != nil {
		return nil, dbErr(err, "get nodeinfo")
	}
	return value, nil
}

func (s *Store) Has(key digest.SecureHash) bool {
	if key.IsZero() {
		return false
	}
	var one int
	err := s.db.db.QueryRow("SELECT 1 FROM nodeinfo WHERE hash = ?", key[:]).Scan(&one)
	return err == nil
}

func (s *Store) Keys() ([]digest.SecureHash, error) {
	rows, err := s.db.db.Query("SELECT hash FROM nodeinfo")
	if err != nil {
		return nil, dbErr(err, "list nodeinfo")
	}
	defer rows.Close()
	var out []digest.SecureHash
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, dbErr(err, "list nodeinfo")
		}
		h, err := digest.FromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("sqlite: corrupt key in nodeinfo: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr(err, "list nodeinfo")
	}
	return out, nil
}

// Sink implements storage.Sink as one row of the published table.
type Sink struct {
	db   *DB
	slot string
}

var _ storage.Sink = (*Sink)(nil)

func (s *Sink) Put(value []byte) error {
	return s.db.doTxn("publish "+s.slot, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO published (slot, value, updated) VALUES (?, ?, ?)
			ON CONFLICT (slot) DO UPDATE SET value = excluded.value, updated = excluded.updated`,
			s.slot, value, time.Now().Unix())
		return err
	})
}

func (s *Sink) Get() ([]byte, error) {
	var value []byte
	err := s.db.db.QueryRow("SELECT value FROM published WHERE slot = ?", s.slot).Scan(&value)
	if err != nil {
		return nil, dbErr(err, "get "+s.slot)
	}
	return value, nil
}
