package sqlite

import (
	"fmt"

	"xdao.co/netmap/storage"
	"xdao.co/netmap/storage/backends"
)

func init() {
	backends.MustRegister(backends.Backend{
		Name:        "sqlite",
		Description: "SQLite node info table",
		Usage:       backends.UsageServer | backends.UsageDaemon,
		Options: []backends.Option{
			{Key: "sqlite-path", Usage: "SQLite database file"},
		},
		Open: func(cfg map[string]string) (storage.Store, func() error, error) {
			path := cfg["sqlite-path"]
			if path == "" {
				return nil, nil, fmt.Errorf("missing sqlite-path")
			}
			db, err := Open(path)
			if err != nil {
				return nil, nil, err
			}
			return db.Store(), db.Close, nil
		},
	})
}
