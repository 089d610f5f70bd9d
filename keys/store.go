package keys

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
)

// KeyStore holds operator seeds for the netmapd CA tooling: one root seed
// per operator name plus role seeds derived from it, e.g. a doorman or
// network-map signer.
//
//	<dir>/<name>/root.key
//	<dir>/<name>/roles/<role>.key
type KeyStore struct {
	Directory string
}

// KeyEntry lists one operator and the roles derived from its root seed.
type KeyEntry struct {
	Identifier string
	Roles      []string
}

const (
	rootKeyFile = "root.key"
	rolesDir    = "roles"
	keyExt      = ".key"
)

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// DefaultDir is ~/.xdao/netmap/keys.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".xdao", "netmap", "keys"), nil
}

// CreateKeyStore opens dir, or DefaultDir when dir is empty. Nothing is
// created until a key is written.
func CreateKeyStore(dir string) (*KeyStore, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return &KeyStore{Directory: dir}, nil
}

func (ks *KeyStore) path(name, role string) string {
	if role == "" {
		return filepath.Join(ks.Directory, name, rootKeyFile)
	}
	return filepath.Join(ks.Directory, name, rolesDir, role+keyExt)
}

// CheckKeyName rejects names that are empty or could escape the store.
func CheckKeyName(name string) error { return checkName("identifier", name) }

// CheckRole applies the CheckKeyName rules to a role.
func CheckRole(role string) error { return checkName("role", role) }

func checkName(what, s string) error {
	if s == "" {
		return fmt.Errorf("%s cannot be empty", what)
	}
	if !nameRE.MatchString(s) {
		return fmt.Errorf("invalid %s %q: only letters, digits, '-' and '_' are allowed", what, s)
	}
	return nil
}

// ParseSeedHex decodes a SeedSize-byte seed. A 0x prefix and surrounding
// whitespace are ignored.
func ParseSeedHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	seed, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed is %d bytes, want %d", len(seed), SeedSize)
	}
	return seed, nil
}

// EncodeKeyFile renders kp as "<scheme>:<hex seed>\n".
func EncodeKeyFile(kp *KeyPair) []byte {
	return []byte(string(kp.Scheme) + ":" + hex.EncodeToString(kp.seed) + "\n")
}

// DecodeKeyFile parses EncodeKeyFile output. A bare hex seed is ed25519.
func DecodeKeyFile(data []byte) (*KeyPair, error) {
	line := strings.TrimSpace(string(data))
	scheme := Ed25519
	if alg, enc, ok := strings.Cut(line, ":"); ok {
		s, err := ParseScheme(alg)
		if err != nil {
			return nil, err
		}
		scheme, line = s, enc
	}
	seed, err := ParseSeedHex(line)
	if err != nil {
		return nil, err
	}
	return FromSeed(scheme, seed)
}

// WriteKeyFile stores kp at path with mode 0600. An existing file is an
// error unless overwrite is set.
func WriteKeyFile(path string, kp *KeyPair, overwrite bool) error {
	if kp == nil || len(kp.seed) != SeedSize {
		return errors.New("keys: keypair has no seed")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data := EncodeKeyFile(kp)
	if overwrite {
		// Temp files are created 0600 and renamed over the target.
		return atomic.WriteFile(path, bytes.NewReader(data))
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadKeyFile loads a key written by WriteKeyFile.
func ReadKeyFile(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	kp, err := DecodeKeyFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return kp, nil
}

// InitializeRootKey writes seed as name's root key and returns the key and
// the file it was written to.
func (ks *KeyStore) InitializeRootKey(name string, scheme Scheme, seed []byte, overwrite bool) (*KeyPair, string, error) {
	if err := CheckKeyName(name); err != nil {
		return nil, "", err
	}
	kp, err := FromSeed(scheme, seed)
	if err != nil {
		return nil, "", err
	}
	p := ks.path(name, "")
	if err := WriteKeyFile(p, kp, overwrite); err != nil {
		return nil, "", err
	}
	return kp, p, nil
}

// DeriveKeyFromRole derives role's key from name's root seed (see
// DeriveRoleSeed) and stores it. The role key inherits the root's scheme.
func (ks *KeyStore) DeriveKeyFromRole(name, role string, overwrite bool) (*KeyPair, string, error) {
	if err := CheckKeyName(name); err != nil {
		return nil, "", err
	}
	root, err := ReadKeyFile(ks.path(name, ""))
	if err != nil {
		return nil, "", err
	}
	seed, err := DeriveRoleSeed(root.seed, role)
	if err != nil {
		return nil, "", err
	}
	kp, err := FromSeed(root.Scheme, seed)
	if err != nil {
		return nil, "", err
	}
	p := ks.path(name, role)
	if err := WriteKeyFile(p, kp, overwrite); err != nil {
		return nil, "", err
	}
	return kp, p, nil
}

// Load returns name's root key, or its role key when role is set.
func (ks *KeyStore) Load(name, role string) (*KeyPair, error) {
	if err := CheckKeyName(name); err != nil {
		return nil, err
	}
	if role != "" {
		if err := CheckRole(role); err != nil {
			return nil, err
		}
	}
	return ReadKeyFile(ks.path(name, role))
}

// ListKeys returns every operator with a root key, sorted by name, with its
// derived roles sorted. A missing store directory lists nothing.
func (ks *KeyStore) ListKeys() ([]KeyEntry, error) {
	roots, err := filepath.Glob(filepath.Join(ks.Directory, "*", rootKeyFile))
	if err != nil {
		return nil, err
	}
	out := make([]KeyEntry, 0, len(roots))
	for _, root := range roots {
		dir := filepath.Dir(root)
		e := KeyEntry{Identifier: filepath.Base(dir)}
		roles, err := filepath.Glob(filepath.Join(dir, rolesDir, "*"+keyExt))
		if err != nil {
			return nil, err
		}
		for _, r := range roles {
			e.Roles = append(e.Roles, strings.TrimSuffix(filepath.Base(r), keyExt))
		}
		sort.Strings(e.Roles)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}
