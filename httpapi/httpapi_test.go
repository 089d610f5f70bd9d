package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"xdao.co/netmap/authority"
	"xdao.co/netmap/digest"
	"xdao.co/netmap/httpapi"
	"xdao.co/netmap/internal/netmaptest"
	"xdao.co/netmap/keys"
	"xdao.co/netmap/model"
	"xdao.co/netmap/registry"
	"xdao.co/netmap/service"
	"xdao.co/netmap/storage"
)

const alice = "O=Alice,L=Paris,C=FR"

func newServer(t *testing.T) (*httptest.Server, *netmaptest.PKI) {
	t.Helper()
	pki := netmaptest.NewPKI(t, keys.Ed25519)
	clock := clockwork.NewFakeClockAt(netmaptest.Now)
	log := zaptest.NewLogger(t)
	reg, err := registry.New(storage.NewMemoryStore(), pki.Trust,
		registry.WithLogger(log), registry.WithClock(clock))
	require.NoError(t, err)
	svc, err := service.New(service.Config{
		Registry:       reg,
		Authority:      authority.Static(pki.Authority),
		MapSink:        &storage.MemorySink{},
		ParametersSink: &storage.MemorySink{},
		Logger:         log,
		Clock:          clock,
	})
	require.NoError(t, err)
	srv := httptest.NewServer(httpapi.NewHandler(svc, httpapi.Options{Logger: log, MaxBodyBytes: 64 << 10, Metrics: true}))
	t.Cleanup(srv.Close)
	return srv, pki
}

func do(t *testing.T, method, url string, body []byte) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, b
}

func decodeError(t *testing.T, b []byte) model.CodedError {
	t.Helper()
	var ce model.CodedError
	require.NoError(t, json.Unmarshal(b, &ce), string(b))
	return ce
}

func TestPing(t *testing.T) {
	srv, _ := newServer(t)
	status, body := do(t, http.MethodGet, srv.URL+"/ping", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "OK", string(body))
}

func TestPublishFetchAndBuild(t *testing.T) {
	srv, pki := newServer(t)
	raw := pki.NewNode(t, alice).Signed(t, 1)

	status, body := do(t, http.MethodPost, srv.URL+"/network-map/publish", raw)
	require.Equal(t, http.StatusOK, status, string(body))
	h, err := digest.Parse(string(body))
	require.NoError(t, err)

	status, body = do(t, http.MethodGet, srv.URL+"/network-map/node-info/"+h.String(), nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, raw, body)

	status, body = do(t, http.MethodGet, srv.URL+"/network-map/node-info/"+h.CID().String()+"?format=json", nil)
	require.Equal(t, http.StatusOK, status)
	var view model.NodeInfoView
	require.NoError(t, json.Unmarshal(body, &view))
	require.Equal(t, alice, view.LegalName)
	require.Equal(t, "node-identity", view.Signer.Role)

	status, body = do(t, http.MethodGet, srv.URL+"/network-map/node-infos", nil)
	require.Equal(t, http.StatusOK, status)
	var listed []string
	require.NoError(t, json.Unmarshal(body, &listed))
	require.Equal(t, []string{h.String()}, listed)

	status, body = do(t, http.MethodGet, srv.URL+"/network-map", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, model.ErrNotFound, decodeError(t, body).Code)

	status, body = do(t, http.MethodGet, srv.URL+"/generate", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = do(t, http.MethodGet, srv.URL+"/network-map?format=json", nil)
	require.Equal(t, http.StatusOK, status)
	var nm model.NetworkMapView
	require.NoError(t, json.Unmarshal(body, &nm))
	require.Equal(t, []string{h.String()}, nm.NodeInfoHashes)
	require.Equal(t, "network-map", nm.Signer.Role)

	status, body = do(t, http.MethodGet, srv.URL+"/network-map", nil)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, body)

	status, _ = do(t, http.MethodGet, srv.URL+"/network-map/network-parameters/"+nm.NetworkParametersHash, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = do(t, http.MethodGet, srv.URL+"/network-map/network-parameters/"+h.String(), nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestPublishRejections(t *testing.T) {
	srv, _ := newServer(t)
	foreign := netmaptest.ForeignPKI(t, keys.Ed25519)

	cases := []struct {
		name   string
		body   []byte
		status int
		code   model.ErrorCode
	}{
		{"garbage", []byte("not an envelope"), http.StatusBadRequest, model.ErrMalformed},
		{"untrusted", foreign.NewNode(t, alice).Signed(t, 1), http.StatusForbidden, model.ErrUntrustedRoot},
		{"too large", bytes.Repeat([]byte{0}, 65<<10), http.StatusRequestEntityTooLarge, model.ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := do(t, http.MethodPost, srv.URL+"/network-map/publish", tc.body)
			require.Equal(t, tc.status, status, string(body))
			require.Equal(t, tc.code, decodeError(t, body).Code)
		})
	}

	status, body := do(t, http.MethodGet, srv.URL+"/network-map/node-infos", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "[]", strings.TrimSpace(string(body)))
}

func TestNodeInfoLookupErrors(t *testing.T) {
	srv, _ := newServer(t)

	status, body := do(t, http.MethodGet, srv.URL+"/network-map/node-info/zzzz", nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, model.ErrInvalidHash, decodeError(t, body).Code)

	status, body = do(t, http.MethodGet, srv.URL+"/network-map/node-info/"+digest.Of([]byte("absent")).String(), nil)
	require.Equal(t, http.StatusNotFound, status)
	ce := decodeError(t, body)
	require.Equal(t, model.ErrNotFound, ce.Code)
	require.Equal(t, "NM-REG-020", ce.Rule)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newServer(t)
	status, _ := do(t, http.MethodGet, srv.URL+"/network-map/publish", nil)
	require.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newServer(t)
	do(t, http.MethodPost, srv.URL+"/generate", nil)
	status, body := do(t, http.MethodGet, srv.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(body), "netmap_builder_builds_total")
}

func TestServer_ShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := httpapi.NewServer(l.Addr().String(), http.NotFoundHandler(), zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()
	cancel()
	require.NoError(t, <-done)
}
