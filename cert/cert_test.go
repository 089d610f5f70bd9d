package cert

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xdao.co/netmap/keys"
	"xdao.co/netmap/netmap"
)

var (
	t0    = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tEnd  = t0.Add(365 * 24 * time.Hour)
	tMid  = t0.Add(24 * time.Hour)
	names = struct{ root, inter, nodeCA, node, nm string }{
		root:   "CN=Root,O=XDAO,L=London,C=GB",
		inter:  "CN=Doorman,O=XDAO,L=London,C=GB",
		nodeCA: "CN=Alice CA,O=Alice,L=Paris,C=FR",
		node:   "O=Alice,L=Paris,C=FR",
		nm:     "CN=Network Map,O=XDAO,L=London,C=GB",
	}
)

func seedKey(t *testing.T, scheme keys.Scheme, b byte) *keys.KeyPair {
	t.Helper()
	kp, err := keys.FromSeed(scheme, bytes.Repeat([]byte{b}, keys.SeedSize))
	require.NoError(t, err)
	return kp
}

func tmpl(role Role, subject string) Template {
	return Template{Role: role, Subject: subject, NotBefore: t0, NotAfter: tEnd}
}

type pki struct {
	root, inter, nodeCA, node, nm *Certificate

	rootKey, interKey, nodeCAKey, nodeKey, nmKey *keys.KeyPair

	trust *TrustStore
}

func newPKI(t *testing.T, scheme keys.Scheme) *pki {
	t.Helper()
	p := &pki{
		rootKey:   seedKey(t, scheme, 1),
		interKey:  seedKey(t, scheme, 2),
		nodeCAKey: seedKey(t, scheme, 3),
		nodeKey:   seedKey(t, scheme, 4),
		nmKey:     seedKey(t, scheme, 5),
	}
	var err error
	p.root, err = SelfSign(p.rootKey, tmpl(RoleRootCA, names.root))
	require.NoError(t, err)
	p.inter, err = Issue(p.root, p.rootKey, scheme, p.interKey.Public, tmpl(RoleIntermediateCA, names.inter))
	require.NoError(t, err)
	p.nodeCA, err = Issue(p.inter, p.interKey, scheme, p.nodeCAKey.Public, tmpl(RoleNodeCA, names.nodeCA))
	require.NoError(t, err)
	p.node, err = Issue(p.nodeCA, p.nodeCAKey, scheme, p.nodeKey.Public, tmpl(RoleNodeIdentity, names.node))
	require.NoError(t, err)
	p.nm, err = Issue(p.root, p.rootKey, scheme, p.nmKey.Public, tmpl(RoleNetworkMap, names.nm))
	require.NoError(t, err)
	p.trust, err = NewTrustStore(p.root)
	require.NoError(t, err)
	return p
}

func TestVerifyChain_ValidPaths(t *testing.T) {
	for _, scheme := range []keys.Scheme{keys.Ed25519, keys.Dilithium3} {
		t.Run(string(scheme), func(t *testing.T) {
			p := newPKI(t, scheme)
			opts := VerifyOptions{Now: tMid}

			require.NoError(t, VerifyChain([]*Certificate{p.node, p.nodeCA, p.inter, p.root}, p.trust, opts))
			// The root may be omitted when the last certificate names it as issuer.
			require.NoError(t, VerifyChain([]*Certificate{p.node, p.nodeCA, p.inter}, p.trust, opts))
			require.NoError(t, VerifyChain([]*Certificate{p.nm}, p.trust, opts))
			require.NoError(t, VerifyChain([]*Certificate{p.root}, p.trust, opts))
		})
	}
}

func TestVerifyChain_Untrusted(t *testing.T) {
	p := newPKI(t, keys.Ed25519)
	other := newPKI(t, keys.Ed25519)
	otherKey := seedKey(t, keys.Ed25519, 9)
	foreignRoot, err := SelfSign(otherKey, tmpl(RoleRootCA, "CN=Other,O=Other,L=Berlin,C=DE"))
	require.NoError(t, err)
	foreignNM, err := Issue(foreignRoot, otherKey, keys.Ed25519, other.nmKey.Public, tmpl(RoleNetworkMap, names.nm))
	require.NoError(t, err)

	err = VerifyChain([]*Certificate{foreignNM, foreignRoot}, p.trust, VerifyOptions{})
	require.True(t, netmap.IsKind(err, netmap.KindUntrustedRoot), "got %v", err)

	err = VerifyChain([]*Certificate{foreignNM}, p.trust, VerifyOptions{})
	require.True(t, netmap.IsKind(err, netmap.KindUntrustedRoot), "got %v", err)

	empty, err := NewTrustStore()
	require.NoError(t, err)
	err = VerifyChain([]*Certificate{p.nm}, empty, VerifyOptions{})
	require.True(t, netmap.IsKind(err, netmap.KindUntrustedRoot), "got %v", err)
}

func TestVerifyChain_BrokenLinks(t *testing.T) {
	p := newPKI(t, keys.Ed25519)

	// Skipping the node CA breaks the issuer link.
	err := VerifyChain([]*Certificate{p.node, p.inter, p.root}, p.trust, VerifyOptions{})
	require.True(t, netmap.IsKind(err, netmap.KindInvalidSignature), "got %v", err)

	tampered := *p.node
	tampered.Subject = "O=Mallory,L=Paris,C=FR"
	err = VerifyChain([]*Certificate{&tampered, p.nodeCA, p.inter, p.root}, p.trust, VerifyOptions{})
	require.True(t, netmap.IsKind(err, netmap.KindInvalidSignature), "got %v", err)
	require.Equal(t, "NM-CERT-015", netmap.RuleID(err))

	err = VerifyChain([]*Certificate{p.node, p.nodeCA, p.inter}, p.trust, VerifyOptions{LeafRoles: []Role{RoleNetworkMap}})
	require.True(t, netmap.IsKind(err, netmap.KindInvalidSignature), "got %v", err)
	require.Equal(t, "NM-CERT-010", netmap.RuleID(err))

	err = VerifyChain([]*Certificate{p.nm}, p.trust, VerifyOptions{Now: tEnd.Add(time.Hour)})
	require.Equal(t, "NM-CERT-011", netmap.RuleID(err))

	err = VerifyChain(nil, p.trust, VerifyOptions{})
	require.True(t, netmap.IsKind(err, netmap.KindMalformed), "got %v", err)
}

func TestIssue_RoleRules(t *testing.T) {
	p := newPKI(t, keys.Ed25519)

	_, err := Issue(p.nodeCA, p.nodeCAKey, keys.Ed25519, p.nmKey.Public, tmpl(RoleNetworkMap, names.nm))
	require.Error(t, err)
	_, err = Issue(p.node, p.nodeKey, keys.Ed25519, p.nmKey.Public, tmpl(RoleNodeIdentity, names.node))
	require.Error(t, err)
	_, err = Issue(p.root, p.interKey, keys.Ed25519, p.nmKey.Public, tmpl(RoleNetworkMap, names.nm))
	require.Error(t, err, "issuer key must match issuer certificate")
	_, err = SelfSign(p.nmKey, tmpl(RoleNetworkMap, names.nm))
	require.Error(t, err)
	_, err = SelfSign(p.rootKey, Template{Role: RoleRootCA, Subject: names.root, NotBefore: tEnd, NotAfter: t0})
	require.Error(t, err)
}

func TestTrustStore_RejectsNonRoots(t *testing.T) {
	p := newPKI(t, keys.Ed25519)
	_, err := NewTrustStore(p.inter)
	require.Error(t, err)

	ts, err := NewTrustStore(p.root, p.root)
	require.NoError(t, err)
	require.Equal(t, 1, ts.Len())
	require.True(t, ts.Contains(p.root))
	require.False(t, ts.Contains(p.inter))
}

func TestEncodeDecode(t *testing.T) {
	p := newPKI(t, keys.Dilithium3)
	b, err := p.node.Encode()
	require.NoError(t, err)
	got, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, p.node, got)
	require.Equal(t, p.node.Fingerprint(), got.Fingerprint())

	_, err = Decode(b[:len(b)-1])
	require.True(t, netmap.IsKind(err, netmap.KindMalformed), "got %v", err)
}

func TestPEM(t *testing.T) {
	p := newPKI(t, keys.Ed25519)
	data, err := EncodePEM(p.node, p.nodeCA, p.inter, p.root)
	require.NoError(t, err)
	certs, err := DecodePEM(data)
	require.NoError(t, err)
	require.Len(t, certs, 4)
	require.NoError(t, VerifyChain(certs, p.trust, VerifyOptions{}))

	_, err = DecodePEM([]byte("-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n"))
	require.Error(t, err)
	_, err = DecodePEM(nil)
	require.Error(t, err)
}

func TestValidateName(t *testing.T) {
	require.NoError(t, ValidateName("CN=Network Map,O=XDAO,L=London,C=GB"))
	require.NoError(t, ValidateName("O=Bank A, L=New York, C=US"))
	for _, bad := range []string{"", "CN=x", "O=A,L=B", "O=A,L=B,C=GB,O=C", "X=1,O=A,L=B,C=GB", "O=,L=B,C=GB"} {
		require.Error(t, ValidateName(bad), bad)
	}
}
