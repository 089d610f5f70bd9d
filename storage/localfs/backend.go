package localfs

import (
	"fmt"

	"xdao.co/netmap/storage"
	"xdao.co/netmap/storage/backends"
)

func init() {
	backends.MustRegister(backends.Backend{
		Name:        "localfs",
		Description: "Local filesystem store (one file per hash)",
		Usage:       backends.UsageServer | backends.UsageDaemon,
		Options: []backends.Option{
			{Key: "localfs-dir", Usage: "LocalFS store directory"},
		},
		Open: func(cfg map[string]string) (storage.Store, func() error, error) {
			dir := cfg["localfs-dir"]
			if dir == "" {
				return nil, nil, fmt.Errorf("missing localfs-dir")
			}
			s, err := New(dir)
			return s, nil, err
		},
	})
}
