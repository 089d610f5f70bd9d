package backends

import (
	"testing"

	"github.com/spf13/pflag"

	"xdao.co/netmap/digest"
	"xdao.co/netmap/storage"
)

func TestOpen_Memory(t *testing.T) {
	s, closeFn, err := Open("memory", UsageServer, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if closeFn != nil {
		t.Fatalf("memory backend should not need closing")
	}
	k := digest.Of([]byte("k"))
	if err := s.Put(k, []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !s.Has(k) {
		t.Fatalf("Has = false after Put")
	}
}

func TestOpen_Errors(t *testing.T) {
	if _, _, err := Open("nope", UsageServer, nil); err == nil {
		t.Fatalf("expected unknown backend error")
	}
	if _, _, err := Open("memory", UsageServer, map[string]string{"bogus": "1"}); err == nil {
		t.Fatalf("expected unknown option error")
	}
}

func TestRegister_Validation(t *testing.T) {
	open := func(map[string]string) (storage.Store, func() error, error) { return storage.NewMemoryStore(), nil, nil }
	if err := Register(Backend{Name: "", Usage: UsageServer, Open: open}); err == nil {
		t.Fatalf("expected name error")
	}
	if err := Register(Backend{Name: "x-no-usage", Open: open}); err == nil {
		t.Fatalf("expected usage error")
	}
	if err := Register(Backend{Name: "memory", Usage: UsageServer, Open: open}); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestFlags(t *testing.T) {
	if err := Register(Backend{
		Name:    "test-flags",
		Usage:   UsageDaemon,
		Options: []Option{{Key: "test-flags-dir", Default: "/tmp/x", Usage: "directory"}},
		Open: func(cfg map[string]string) (storage.Store, func() error, error) {
			if cfg["test-flags-dir"] != "/srv/data" {
				t.Errorf("cfg = %v", cfg)
			}
			return storage.NewMemoryStore(), nil, nil
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, UsageDaemon)
	if err := fs.Parse([]string{"--test-flags-dir=/srv/data"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, _, err := Open("test-flags", UsageDaemon, FlagConfig(fs, "test-flags")); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := Open("test-flags", UsageServer, nil); err == nil {
		t.Fatalf("expected usage mismatch")
	}
}
