package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"xdao.co/netmap/authority"
	"xdao.co/netmap/cert"
	"xdao.co/netmap/config"
	"xdao.co/netmap/keys"
	"xdao.co/netmap/registry"
	"xdao.co/netmap/service"
	"xdao.co/netmap/storage"
	"xdao.co/netmap/storage/backends"
	"xdao.co/netmap/storage/leveldb"
	"xdao.co/netmap/storage/localfs"
	"xdao.co/netmap/storage/sqlite"
)

const (
	networkMapSlot        = "network-map"
	networkParametersSlot = "network-parameters"
)

// app holds the assembled service and everything that must be closed with it.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	trust     *cert.TrustStore
	registry  *registry.Registry
	authority *authority.Provider
	service   *service.Service
	closers   []func() error
}

func newApp(cfg config.Config, logger *zap.Logger, clock clockwork.Clock) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.trust, err = openTrust(cfg)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := cfg.Storage.Open(backends.UsageServer, "")
	if err != nil {
		return nil, err
	}
	a.onClose(closeStore)

	a.registry, err = registry.New(store, a.trust,
		registry.WithLogger(logger),
		registry.WithPolicy(cfg.Policy()),
		registry.WithClock(clock),
		registry.WithCacheSize(cfg.CacheSize),
	)
	if err != nil {
		return nil, err
	}

	mapSink, paramSink, closeSinks, err := openSinks(cfg.Publish)
	if err != nil {
		return nil, err
	}
	a.onClose(closeSinks)

	a.authority = authority.NewProvider(authoritySource(cfg, clock), authority.WithLogger(logger))
	a.service, err = service.New(service.Config{
		Registry:       a.registry,
		Authority:      a.authority,
		MapSink:        mapSink,
		ParametersSink: paramSink,
		Parameters:     cfg.Parameters.NetworkParameters(clock.Now()),
		Logger:         logger,
		Clock:          clock,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) onClose(fn func() error) {
	if fn != nil {
		a.closers = append(a.closers, fn)
	}
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openTrust loads the configured roots. Dev mode adds the development root
// of every scheme.
func openTrust(cfg config.Config) (*cert.TrustStore, error) {
	ts, err := authority.LoadTrust(cfg.Trust.RootCertFiles...)
	if err != nil {
		return nil, err
	}
	if cfg.Trust.DevMode {
		for _, scheme := range []keys.Scheme{keys.Ed25519, keys.Dilithium3} {
			root, err := authority.DevRoot(scheme)
			if err != nil {
				return nil, err
			}
			if err := ts.Add(root.Cert); err != nil {
				return nil, err
			}
		}
	}
	if ts.Len() == 0 {
		return nil, errors.New("no trusted roots configured")
	}
	return ts, nil
}

func authoritySource(cfg config.Config, clock clockwork.Clock) authority.Source {
	ac := cfg.Authority
	if ac.KeyFile != "" {
		return authority.FromFiles(ac.KeyFile, ac.CertFile, ac.HashAlg)
	}
	opts := authority.IssueOptions{
		Scheme:   keys.Scheme(ac.Scheme),
		Name:     ac.Name,
		Validity: ac.Validity,
		HashAlg:  ac.HashAlg,
		Now:      clock.Now,
	}
	if ac.RootKeyFile != "" {
		return func() (*authority.Authority, error) {
			root, err := authority.LoadRoot(ac.RootKeyFile, ac.RootCertFile)
			if err != nil {
				return nil, err
			}
			return authority.IssueNetworkMapCA(root, opts)
		}
	}
	if cfg.Trust.DevMode {
		return func() (*authority.Authority, error) {
			root, err := authority.DevRoot(opts.Scheme)
			if err != nil {
				return nil, err
			}
			return authority.IssueNetworkMapCA(root, opts)
		}
	}
	return nil
}

func openSinks(pc config.PublishConfig) (mapSink, paramSink storage.Sink, closeFn func() error, err error) {
	switch pc.Backend {
	case "memory":
		return &storage.MemorySink{}, &storage.MemorySink{}, nil, nil
	case "localfs":
		m, err := localfs.NewSink(filepath.Join(pc.Dir, networkMapSlot+".ser"))
		if err != nil {
			return nil, nil, nil, err
		}
		p, err := localfs.NewSink(filepath.Join(pc.Dir, networkParametersSlot+".ser"))
		if err != nil {
			return nil, nil, nil, err
		}
		return m, p, nil, nil
	case "sqlite":
		db, err := sqlite.Open(pc.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return db.Sink(networkMapSlot), db.Sink(networkParametersSlot), db.Close, nil
	case "leveldb":
		db, err := leveldb.Open(pc.LevelDBDir)
		if err != nil {
			return nil, nil, nil, err
		}
		return db.Sink(networkMapSlot), db.Sink(networkParametersSlot), db.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown publish backend %q", pc.Backend)
	}
}
