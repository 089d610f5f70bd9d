package leveldb

import (
	"fmt"

	netstore "xdao.co/netmap/storage"
	"xdao.co/netmap/storage/backends"
)

func init() {
	backends.MustRegister(backends.Backend{
		Name:        "leveldb",
		Description: "LevelDB key-value store",
		Usage:       backends.UsageServer | backends.UsageDaemon,
		Options: []backends.Option{
			{Key: "leveldb-dir", Usage: "LevelDB database directory"},
		},
		Open: func(cfg map[string]string) (netstore.Store, func() error, error) {
			dir := cfg["leveldb-dir"]
			if dir == "" {
				return nil, nil, fmt.Errorf("missing leveldb-dir")
			}
			db, err := Open(dir)
			if err != nil {
				return nil, nil, err
			}
			return db.Store(), db.Close, nil
		},
	})
}
