// Package storeconfig opens one or more storage backends from configuration.
package storeconfig

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"xdao.co/netmap/storage"
	"xdao.co/netmap/storage/backends"
)

// Config describes how to open one or more backends via the backends registry.
//
// This provides "config-driven" runtime backend selection.
// Callers still need to link desired backend plugins via blank imports.
//
// WritePolicy values:
// - "first" (default): write only to the first backend; reads fall back in order
// - "all": write to all backends (see storage.ReplicatingStore)
//
// Example (YAML):
//
//	write_policy: all
//	backends:
//	  - name: sqlite
//	    config: {sqlite-path: /var/lib/netmap/netmap.db}
//	  - name: grpc
//	    id: replica
//	    config: {grpc-target: "10.0.0.2:7777"}
//
// Config values are backend-specific and mirror the backend's flag names.
type Config struct {
	WritePolicy string          `mapstructure:"write_policy" json:"write_policy,omitempty"`
	Backends    []BackendConfig `mapstructure:"backends" json:"backends"`
}

type BackendConfig struct {
	// Name is the registered backend name to open (e.g. "grpc", "localfs", "sqlite").
	Name string `mapstructure:"name" json:"name"`
	// ID is an optional stable alias used for identification in replication reports.
	// If empty, Name is used.
	ID     string            `mapstructure:"id" json:"id,omitempty"`
	Config map[string]string `mapstructure:"config" json:"config,omitempty"`
}

// LoadFile reads a config file in any format viper understands.
func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("storeconfig: empty config path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("storeconfig: at least one backend is required")
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return errors.New("storeconfig: backend name is required")
		}
		id := b.id()
		if _, ok := seen[id]; ok {
			return fmt.Errorf("storeconfig: duplicate backend id %q", id)
		}
		seen[id] = struct{}{}
	}
	switch c.WritePolicy {
	case "", "first", "all":
		return nil
	default:
		return fmt.Errorf("storeconfig: invalid write_policy %q", c.WritePolicy)
	}
}

func (b BackendConfig) id() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

// Open opens a Store per config.
//
// If preferredBackend is non-empty, backends are reordered so preferredBackend
// is first (and thus used for writes when WritePolicy=="first").
func (c Config) Open(usage backends.Usage, preferredBackend string) (storage.Store, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	ordered := append([]BackendConfig(nil), c.Backends...)
	if preferredBackend != "" {
		idx := -1
		for i := range ordered {
			if ordered[i].Name == preferredBackend || ordered[i].ID == preferredBackend {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, fmt.Errorf("storeconfig: preferred backend %q not found in config", preferredBackend)
		}
		if idx != 0 {
			b := ordered[idx]
			copy(ordered[1:idx+1], ordered[0:idx])
			ordered[0] = b
		}
	}

	named := make([]storage.NamedStore, 0, len(ordered))
	closers := make([]func() error, 0, len(ordered))
	for _, b := range ordered {
		s, closeFn, err := backends.Open(b.Name, usage, b.Config)
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
			return nil, nil, fmt.Errorf("storeconfig: backend %q: %w", b.id(), err)
		}
		named = append(named, storage.NamedStore{Name: b.id(), Store: s})
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}

	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	if len(named) == 1 {
		return named[0].Store, closeAll, nil
	}

	switch c.WritePolicy {
	case "", "first":
		adapters := make([]storage.Store, 0, len(named))
		for _, n := range named {
			adapters = append(adapters, n.Store)
		}
		return storage.MultiStore{Adapters: adapters}, closeAll, nil
	case "all":
		return storage.ReplicatingStore{Backends: named}, closeAll, nil
	default:
		return nil, nil, fmt.Errorf("storeconfig: invalid write_policy %q", c.WritePolicy)
	}
}
