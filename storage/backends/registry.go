// Package backends is the build-time registry of storage.Store implementations.
package backends

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/pflag"

	"xdao.co/netmap/storage"
)

// Option documents one backend configuration key. Keys double as CLI flag
// names, so "localfs-dir" is both a config key and --localfs-dir.
type Option struct {
	Key     string
	Default string
	Usage   string
}

// Backend is a build-time plugin that can open a storage.Store implementation.
//
// Backends typically register themselves in init():
//
//	backends.MustRegister(backends.Backend{ ... })
//
// The binary must import the backend package for registration to occur.
type Backend struct {
	Name        string
	Description string
	Usage       Usage
	Options     []Option

	// Open constructs the store from cfg, which holds Options keys. Missing
	// keys carry their defaults. It returns an optional close function.
	Open func(cfg map[string]string) (storage.Store, func() error, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("backends: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("backends: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("backends: backend %q missing Usage", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("backends: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns backend names matching usage, sorted.
func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// RegisterFlags adds one string flag per backend option for all backends
// matching usage. FlagConfig later reads them back.
func RegisterFlags(fs *pflag.FlagSet, usage Usage) {
	for _, b := range List(usage) {
		for _, o := range b.Options {
			if fs.Lookup(o.Key) != nil {
				continue
			}
			fs.String(o.Key, o.Default, fmt.Sprintf("%s (for backend %s)", o.Usage, b.Name))
		}
	}
}

// FlagConfig collects the option values of backend name from fs.
func FlagConfig(fs *pflag.FlagSet, name string) map[string]string {
	b, ok := lookup(name)
	if !ok {
		return nil
	}
	cfg := map[string]string{}
	for _, o := range b.Options {
		if f := fs.Lookup(o.Key); f != nil {
			cfg[o.Key] = f.Value.String()
		}
	}
	return cfg
}

func lookup(name string) (Backend, bool) {
	mu.RLock()
	defer mu.RUnlock()
	b, ok := backends[name]
	return b, ok
}

// Open opens the named backend if it exists and matches usage.
func Open(name string, usage Usage, cfg map[string]string) (storage.Store, func() error, error) {
	b, ok := lookup(name)
	if !ok {
		return nil, nil, fmt.Errorf("unknown backend %q (known: %s)", name, strings.Join(Names(usage), ", "))
	}
	if !b.Usage.allows(usage) {
		return nil, nil, fmt.Errorf("backend %q not supported in this binary", name)
	}
	merged := make(map[string]string, len(b.Options))
	for _, o := range b.Options {
		merged[o.Key] = o.Default
	}
	for k, v := range cfg {
		if !b.hasOption(k) {
			return nil, nil, fmt.Errorf("backend %q: unknown option %q", name, k)
		}
		merged[k] = v
	}
	return b.Open(merged)
}

func (b Backend) hasOption(key string) bool {
	for _, o := range b.Options {
		if o.Key == key {
			return true
		}
	}
	return false
}
