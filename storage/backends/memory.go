package backends

import "xdao.co/netmap/storage"

func init() {
	MustRegister(Backend{
		Name:        "memory",
		Description: "In-process store; contents are lost on exit",
		Usage:       UsageServer | UsageDaemon,
		Open: func(map[string]string) (storage.Store, func() error, error) {
			return storage.NewMemoryStore(), nil, nil
		},
	})
}
