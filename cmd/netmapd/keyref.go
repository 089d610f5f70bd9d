package main

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"xdao.co/netmap/keys"
)

// keyRef names a key either by file or by key store entry.
type keyRef struct {
	flag string
	file string
	name string
	role string
	dir  string
}

func newKeyRef(fs *pflag.FlagSet, flag, what string) *keyRef {
	k := &keyRef{flag: flag}
	fs.StringVar(&k.file, flag, "", what+" key file")
	fs.StringVar(&k.name, flag+"-name", "", what+" key store identifier")
	fs.StringVar(&k.role, flag+"-role", "", "role key derived from --"+flag+"-name")
	fs.StringVar(&k.dir, flag+"-store", "", "key store directory (default ~/.xdao/netmap/keys)")
	return k
}

func (k *keyRef) set() bool { return k.file != "" || k.name != "" }

func (k *keyRef) load() (*keys.KeyPair, error) {
	switch {
	case k.file != "" && k.name != "":
		return nil, fmt.Errorf("--%s and --%s-name are mutually exclusive", k.flag, k.flag)
	case k.file != "":
		return keys.ReadKeyFile(k.file)
	case k.name != "":
		ks, err := keys.CreateKeyStore(k.dir)
		if err != nil {
			return nil, err
		}
		return ks.Load(k.name, k.role)
	default:
		return nil, fmt.Errorf("missing --%s or --%s-name", k.flag, k.flag)
	}
}

// loadOrGenerate returns the referenced key, or a fresh one written to out.
func (k *keyRef) loadOrGenerate(scheme keys.Scheme, out string, force bool) (*keys.KeyPair, error) {
	if k.set() {
		return k.load()
	}
	if out == "" {
		return nil, errors.New("missing --key-out for the generated key")
	}
	kp, err := keys.Generate(scheme, rand.Reader)
	if err != nil {
		return nil, err
	}
	if err := keys.WriteKeyFile(out, kp, force); err != nil {
		return nil, fmt.Errorf("write key: %w", err)
	}
	return kp, nil
}
