// Package netmaptest builds deterministic PKIs and signed node infos for tests.
package netmaptest

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"
	"time"

	"xdao.co/netmap/authority"
	"xdao.co/netmap/cert"
	"xdao.co/netmap/envelope"
	"xdao.co/netmap/keys"
	"xdao.co/netmap/netmap"
)

var (
	NotBefore = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	NotAfter  = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
	// Now is a fixed instant inside every fixture certificate's validity.
	Now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
)

// PKI is a root, a doorman intermediate beneath it, and a network-map authority.
type PKI struct {
	Scheme    keys.Scheme
	Root      *authority.Root
	Doorman   *authority.Root
	Authority *authority.Authority
	Trust     *cert.TrustStore
}

// Key derives a stable keypair from label.
func Key(t testing.TB, scheme keys.Scheme, label string) *keys.KeyPair {
	t.Helper()
	seed := sha256.Sum256([]byte("netmaptest/" + label))
	kp, err := keys.FromSeed(scheme, seed[:])
	if err != nil {
		t.Fatalf("derive key %q: %v", label, err)
	}
	return kp
}

func issue(t testing.TB, parent *authority.Root, kp *keys.KeyPair, role cert.Role, subject string) *cert.Certificate {
	t.Helper()
	h := sha256.Sum256([]byte(string(role) + "/" + subject))
	c, err := cert.Issue(parent.Cert, parent.Key, kp.Scheme, kp.Public, cert.Template{
		Role:      role,
		Subject:   subject,
		Serial:    binary.BigEndian.Uint64(h[:8]) | 1,
		NotBefore: NotBefore,
		NotAfter:  NotAfter,
	})
	if err != nil {
		t.Fatalf("issue %s %q: %v", role, subject, err)
	}
	return c
}

// NewPKI builds the development root hierarchy for scheme.
func NewPKI(t testing.TB, scheme keys.Scheme) *PKI {
	t.Helper()
	root, err := authority.DevRoot(scheme)
	if err != nil {
		t.Fatalf("dev root: %v", err)
	}
	return newPKIUnder(t, root)
}

// ForeignPKI builds a hierarchy under a root nobody trusts by default. Its
// subjects mirror the development PKI.
func ForeignPKI(t testing.TB, scheme keys.Scheme) *PKI {
	t.Helper()
	kp := Key(t, scheme, "foreign-root")
	c, err := cert.SelfSign(kp, cert.Template{
		Role:      cert.RoleRootCA,
		Subject:   authority.DevRootName,
		Serial:    7,
		NotBefore: NotBefore,
		NotAfter:  NotAfter,
	})
	if err != nil {
		t.Fatalf("foreign root: %v", err)
	}
	return newPKIUnder(t, &authority.Root{Cert: c, Key: kp})
}

func newPKIUnder(t testing.TB, root *authority.Root) *PKI {
	t.Helper()
	scheme := root.Key.Scheme
	prefix := string(scheme) + "/" + root.Cert.Fingerprint().String()
	dkp := Key(t, scheme, prefix+"/doorman")
	doorman := &authority.Root{
		Cert: issue(t, root, dkp, cert.RoleIntermediateCA, "CN=Doorman,O=XDAO,L=London,C=GB"),
		Key:  dkp,
	}
	akp := Key(t, scheme, prefix+"/network-map")
	auth, err := authority.New(akp, []*cert.Certificate{
		issue(t, root, akp, cert.RoleNetworkMap, authority.DefaultName),
		root.Cert,
	}, "")
	if err != nil {
		t.Fatalf("authority: %v", err)
	}
	trust, err := cert.NewTrustStore(root.Cert)
	if err != nil {
		t.Fatalf("trust store: %v", err)
	}
	return &PKI{Scheme: scheme, Root: root, Doorman: doorman, Authority: auth, Trust: trust}
}

// Node is a participant with a node CA and identity certificate.
type Node struct {
	Name string
	Key  *keys.KeyPair
	Path []*cert.Certificate
}

// NewNode creates a participant named by distinguished name name.
func (p *PKI) NewNode(t testing.TB, name string) *Node {
	t.Helper()
	prefix := string(p.Scheme) + "/" + p.Root.Cert.Fingerprint().String() + "/" + name
	caKey := Key(t, p.Scheme, prefix+"/node-ca")
	nodeCA := &authority.Root{
		Cert: issue(t, p.Doorman, caKey, cert.RoleNodeCA, name),
		Key:  caKey,
	}
	idKey := Key(t, p.Scheme, prefix+"/identity")
	id := issue(t, nodeCA, idKey, cert.RoleNodeIdentity, name)
	return &Node{
		Name: name,
		Key:  idKey,
		Path: []*cert.Certificate{id, nodeCA.Cert, p.Doorman.Cert, p.Root.Cert},
	}
}

// Info returns a valid node info for n with the given serial.
func (n *Node) Info(serial int64) netmap.NodeInfo {
	return netmap.NodeInfo{
		Addresses:       []netmap.HostAndPort{{Host: "node.example.net", Port: 10002}},
		LegalName:       n.Name,
		PlatformVersion: 4,
		Serial:          serial,
	}
}

// Sign wraps info as a signed node info and returns the envelope bytes.
func (n *Node) Sign(t testing.TB, info netmap.NodeInfo) []byte {
	t.Helper()
	s, err := envelope.Wrap(info, n.Key, n.Path, "")
	if err != nil {
		t.Fatalf("wrap node info: %v", err)
	}
	b, err := s.Marshal()
	if err != nil {
		t.Fatalf("marshal node info: %v", err)
	}
	return b
}

// Signed is shorthand for n.Sign(t, n.Info(serial)).
func (n *Node) Signed(t testing.TB, serial int64) []byte {
	t.Helper()
	return n.Sign(t, n.Info(serial))
}
