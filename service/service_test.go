package service_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"xdao.co/netmap/authority"
	"xdao.co/netmap/cert"
	"xdao.co/netmap/digest"
	"xdao.co/netmap/envelope"
	"xdao.co/netmap/internal/netmaptest"
	"xdao.co/netmap/keys"
	"xdao.co/netmap/netmap"
	"xdao.co/netmap/registry"
	"xdao.co/netmap/service"
	"xdao.co/netmap/storage"
)

type fixture struct {
	pki     *netmaptest.PKI
	svc     *service.Service
	mapSink *storage.MemorySink
	parSink *storage.MemorySink
}

func newFixture(t *testing.T, scheme keys.Scheme, auth *authority.Provider) *fixture {
	t.Helper()
	pki := netmaptest.NewPKI(t, scheme)
	clock := clockwork.NewFakeClockAt(netmaptest.Now)
	log := zaptest.NewLogger(t)
	reg, err := registry.New(storage.NewMemoryStore(), pki.Trust,
		registry.WithLogger(log), registry.WithClock(clock))
	require.NoError(t, err)
	if auth == nil {
		auth = authority.Static(pki.Authority)
	}
	f := &fixture{pki: pki, mapSink: &storage.MemorySink{}, parSink: &storage.MemorySink{}}
	f.svc, err = service.New(service.Config{
		Registry:       reg,
		Authority:      auth,
		MapSink:        f.mapSink,
		ParametersSink: f.parSink,
		Logger:         log,
		Clock:          clock,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) published(t *testing.T) netmap.NetworkMap {
	t.Helper()
	raw, err := f.svc.NetworkMap()
	require.NoError(t, err)
	s, err := envelope.Parse[netmap.NetworkMap](raw)
	require.NoError(t, err)
	nm, err := s.Unwrap(f.pki.Trust, cert.VerifyOptions{
		LeafRoles: []cert.Role{cert.RoleNetworkMap},
		Now:       netmaptest.Now,
	})
	require.NoError(t, err)
	return nm
}

func TestScenario_SubmitGetBuild(t *testing.T) {
	f := newFixture(t, keys.Ed25519, nil)
	raw := f.pki.NewNode(t, "O=Alice,L=Paris,C=FR").Signed(t, 1)

	h, err := f.svc.Submit(raw)
	require.NoError(t, err)

	got, err := f.svc.Get(h)
	require.NoError(t, err)
	require.Equal(t, raw, got)

	_, err = f.svc.Build("test")
	require.NoError(t, err)
	require.Equal(t, []digest.SecureHash{h}, f.published(t).NodeInfoHashes)
}

func TestScenario_UntrustedSubmissionNeverPublished(t *testing.T) {
	f := newFixture(t, keys.Ed25519, nil)
	foreign := netmaptest.ForeignPKI(t, keys.Ed25519)
	raw := foreign.NewNode(t, "O=Mallory,L=Paris,C=FR").Signed(t, 1)

	h, err := f.svc.Submit(raw)
	require.True(t, netmap.IsKind(err, netmap.KindUntrustedRoot), "got %v", err)
	require.True(t, h.IsZero())

	_, err = f.svc.Build("test")
	require.NoError(t, err)
	require.Empty(t, f.published(t).NodeInfoHashes)
}

func TestScenario_DuplicateSubmission(t *testing.T) {
	f := newFixture(t, keys.Dilithium3, nil)
	raw := f.pki.NewNode(t, "O=Alice,L=Paris,C=FR").Signed(t, 1)

	h1, err := f.svc.Submit(raw)
	require.NoError(t, err)
	h2, err := f.svc.Submit(raw)
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	all, err := f.svc.ListAll()
	require.NoError(t, err)
	require.Equal(t, []digest.SecureHash{h1}, all)
}

func TestBuild_EmptyRegistry(t *testing.T) {
	f := newFixture(t, keys.Ed25519, nil)

	_, err := f.svc.NetworkMap()
	require.True(t, netmap.IsKind(err, netmap.KindNotFound), "got %v", err)

	res, err := f.svc.Build("startup")
	require.NoError(t, err)
	nm := f.published(t)
	require.NotNil(t, nm.NodeInfoHashes)
	require.Empty(t, nm.NodeInfoHashes)
	require.Equal(t, res.ParametersHash, nm.NetworkParametersHash)
}

func TestBuild_ParametersPublishedWithMap(t *testing.T) {
	f := newFixture(t, keys.Ed25519, nil)
	res, err := f.svc.Build("test")
	require.NoError(t, err)

	b, err := f.svc.NetworkParameters(res.ParametersHash)
	require.NoError(t, err)
	require.Equal(t, res.SignedParameters, b)

	s, err := envelope.Parse[netmap.NetworkParameters](b)
	require.NoError(t, err)
	params, err := s.Unwrap(f.pki.Trust, cert.VerifyOptions{Now: netmaptest.Now})
	require.NoError(t, err)
	require.Equal(t, netmap.DefaultParameters(netmaptest.Now), params)
	require.Equal(t, params, f.svc.Parameters())

	_, err = f.svc.NetworkParameters(digest.Of([]byte("stale")))
	require.True(t, netmap.IsKind(err, netmap.KindNotFound), "got %v", err)
}

func TestBuild_ReplacesPreviousMap(t *testing.T) {
	f := newFixture(t, keys.Ed25519, nil)
	_, err := f.svc.Build("first")
	require.NoError(t, err)
	require.Empty(t, f.published(t).NodeInfoHashes)

	h, err := f.svc.Submit(f.pki.NewNode(t, "O=Bob,L=New York,C=US").Signed(t, 1))
	require.NoError(t, err)
	_, err = f.svc.Build("second")
	require.NoError(t, err)
	require.Equal(t, []digest.SecureHash{h}, f.published(t).NodeInfoHashes)
}

func TestBuild_AuthorityUnavailable(t *testing.T) {
	calls := 0
	source := func() (*authority.Authority, error) {
		calls++
		return nil, errors.New("hsm offline")
	}
	f := newFixture(t, keys.Ed25519, authority.NewProvider(source))

	for i := 0; i < 3; i++ {
		_, err := f.svc.Build("test")
		require.True(t, netmap.IsKind(err, netmap.KindAuthorityUnavailable), "got %v", err)
	}
	require.Equal(t, 1, calls)

	_, err := f.mapSink.Get()
	require.True(t, storage.IsNotFound(err))
	_, err = f.parSink.Get()
	require.True(t, storage.IsNotFound(err))
}

func TestBuild_AuthorityOutsideTrust(t *testing.T) {
	foreign := netmaptest.ForeignPKI(t, keys.Ed25519)
	f := newFixture(t, keys.Ed25519, authority.Static(foreign.Authority))

	_, err := f.svc.Build("test")
	require.True(t, netmap.IsKind(err, netmap.KindAuthorityUnavailable), "got %v", err)
	require.Equal(t, "NM-SVC-001", netmap.RuleID(err))

	_, err = f.svc.CheckAuthority()
	require.True(t, netmap.IsKind(err, netmap.KindAuthorityUnavailable), "got %v", err)
	_, err = f.svc.NetworkMap()
	require.True(t, netmap.IsKind(err, netmap.KindNotFound), "nothing may be published")
}

func TestCheckAuthority(t *testing.T) {
	f := newFixture(t, keys.Ed25519, nil)
	auth, err := f.svc.CheckAuthority()
	require.NoError(t, err)
	require.Equal(t, f.pki.Authority.Cert.Fingerprint(), auth.Cert.Fingerprint())

	failing := newFixture(t, keys.Ed25519, authority.NewProvider(nil))
	_, err = failing.svc.CheckAuthority()
	require.True(t, netmap.IsKind(err, netmap.KindAuthorityUnavailable), "got %v", err)
}

func TestBuild_LazyAuthorityInitializedOnce(t *testing.T) {
	pki := netmaptest.NewPKI(t, keys.Ed25519)
	var mu sync.Mutex
	issued := 0
	source := func() (*authority.Authority, error) {
		mu.Lock()
		issued++
		mu.Unlock()
		return pki.Authority, nil
	}
	f := newFixture(t, keys.Ed25519, authority.NewProvider(source))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Build("concurrent")
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, issued)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := service.New(service.Config{})
	require.Error(t, err)
}
