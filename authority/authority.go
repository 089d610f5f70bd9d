// Package authority provisions the identity that signs network maps and
// network parameters: a keypair plus a network-map certificate chained to a
// root the participants trust.
package authority

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"xdao.co/netmap/cert"
	"xdao.co/netmap/keys"
	"xdao.co/netmap/netmap"
)

// DefaultName is the distinguished name given to generated authorities.
const DefaultName = "CN=Network Map,O=XDAO,L=London,C=GB"

// DefaultValidity is the lifetime of a generated authority certificate.
const DefaultValidity = 10 * 365 * 24 * time.Hour

// Root is a CA certificate together with its signing key.
type Root struct {
	Cert *cert.Certificate
	Key  *keys.KeyPair
}

// Authority is the network-map signing identity. Path is ordered leaf first
// and Path[0] is Cert.
type Authority struct {
	Key     *keys.KeyPair
	Cert    *cert.Certificate
	Path    []*cert.Certificate
	HashAlg string
}

// IssueOptions controls IssueNetworkMapCA. Zero values pick defaults.
type IssueOptions struct {
	Scheme   keys.Scheme
	Name     string
	Validity time.Duration
	HashAlg  string
	Now      func() time.Time
	Rand     io.Reader
}

// IssueNetworkMapCA generates a fresh keypair and certifies it as a network
// map signer under root.
func IssueNetworkMapCA(root *Root, opts IssueOptions) (*Authority, error) {
	if root == nil || root.Cert == nil || root.Key == nil {
		return nil, netmap.NewError(netmap.KindAuthorityUnavailable, "NM-AUTH-001", "no root certificate and key configured")
	}
	if opts.Scheme == "" {
		opts.Scheme = root.Key.Scheme
	}
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Validity <= 0 {
		opts.Validity = DefaultValidity
	}
	if opts.HashAlg == "" {
		opts.HashAlg = keys.DefaultHashAlg
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.Reader
	}

	kp, err := keys.Generate(opts.Scheme, opts.Rand)
	if err != nil {
		return nil, netmap.WrapError(netmap.KindAuthorityUnavailable, "NM-AUTH-002", "generate authority key", err)
	}
	now := opts.Now().UTC().Truncate(time.Second)
	notAfter := now.Add(opts.Validity)
	if rootEnd := time.Unix(root.Cert.NotAfter, 0); notAfter.After(rootEnd) {
		notAfter = rootEnd
	}
	c, err := cert.Issue(root.Cert, root.Key, kp.Scheme, kp.Public, cert.Template{
		Role:      cert.RoleNetworkMap,
		Subject:   opts.Name,
		NotBefore: now,
		NotAfter:  notAfter,
		HashAlg:   opts.HashAlg,
	})
	if err != nil {
		return nil, netmap.WrapError(netmap.KindAuthorityUnavailable, "NM-AUTH-003", "issue authority certificate", err)
	}
	return &Authority{
		Key:     kp,
		Cert:    c,
		Path:    []*cert.Certificate{c, root.Cert},
		HashAlg: opts.HashAlg,
	}, nil
}

// New assembles an authority from an existing key and certificate path.
func New(kp *keys.KeyPair, path []*cert.Certificate, hashAlg string) (*Authority, error) {
	if kp == nil || len(path) == 0 {
		return nil, netmap.NewError(netmap.KindAuthorityUnavailable, "NM-AUTH-004", "authority key or certificate missing")
	}
	leaf := path[0]
	if leaf.Role != cert.RoleNetworkMap {
		return nil, netmap.NewError(netmap.KindAuthorityUnavailable, "NM-AUTH-005",
			fmt.Sprintf("authority certificate has role %s, want %s", leaf.Role, cert.RoleNetworkMap))
	}
	if leaf.Scheme != kp.Scheme || string(leaf.PublicKey) != string(kp.Public) {
		return nil, netmap.NewError(netmap.KindAuthorityUnavailable, "NM-AUTH-006", "authority key does not match certificate")
	}
	if hashAlg == "" {
		hashAlg = keys.DefaultHashAlg
	}
	return &Authority{Key: kp, Cert: leaf, Path: path, HashAlg: hashAlg}, nil
}

// Validate checks that the authority chains to trust and is usable at now.
func (a *Authority) Validate(trust *cert.TrustStore, now time.Time) error {
	return cert.VerifyChain(a.Path, trust, cert.VerifyOptions{
		LeafRoles: []cert.Role{cert.RoleNetworkMap},
		Now:       now,
	})
}

func timeOf(unix int64) time.Time {
	return time.Unix(unix, 0).UTC()
}
