package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"xdao.co/netmap/config"
	"xdao.co/netmap/netmap"
	"xdao.co/netmap/storage"
	"xdao.co/netmap/storage/storeconfig"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute(), "netmapd %s: %s", strings.Join(args, " "), out.String())
	return out.String()
}

func executeErr(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	return root.Execute()
}

// issueNode walks the dev root down to a node identity using the CLI.
func issueNode(t *testing.T, dir, name string) (keyFile, certFile string) {
	t.Helper()
	p := func(f string) string { return filepath.Join(dir, f) }
	execute(t, "ca", "init-root", "--dev", "--key-out", p("root.key"), "--cert-out", p("root.pem"))
	execute(t, "ca", "issue",
		"--issuer-key", p("root.key"), "--issuer-cert", p("root.pem"),
		"--role", "intermediate-ca", "--subject", "CN=Doorman,O=XDAO,L=London,C=GB",
		"--key-out", p("doorman.key"), "--cert-out", p("doorman.pem"))
	execute(t, "ca", "issue",
		"--issuer-key", p("doorman.key"), "--issuer-cert", p("doorman.pem"),
		"--role", "node-ca", "--subject", name,
		"--key-out", p("node-ca.key"), "--cert-out", p("node-ca.pem"))
	execute(t, "ca", "issue",
		"--issuer-key", p("node-ca.key"), "--issuer-cert", p("node-ca.pem"),
		"--role", "node-identity", "--subject", name,
		"--key-out", p("identity.key"), "--cert-out", p("identity.pem"))
	return p("identity.key"), p("identity.pem")
}

func TestCLI_SignSubmitBuild(t *testing.T) {
	dir := t.TempDir()
	keyFile, certFile := issueNode(t, dir, "O=Alice,L=Paris,C=FR")

	signed := filepath.Join(dir, "node.ser")
	execute(t, "nodeinfo", "sign", "--key", keyFile, "--cert", certFile,
		"--address", "node.example.net:10002", "--serial", "1", "--out", signed)
	lines := strings.Fields(execute(t, "nodeinfo", "hash", signed))
	require.Len(t, lines, 2)

	cfg := config.Default()
	cfg.Storage = storeconfig.Config{Backends: []storeconfig.BackendConfig{
		{Name: "localfs", Config: map[string]string{"localfs-dir": filepath.Join(dir, "store")}},
	}}
	cfg.Publish = config.PublishConfig{Backend: "localfs", Dir: filepath.Join(dir, "published")}
	require.NoError(t, cfg.Validate())

	a, err := newApp(cfg, zaptest.NewLogger(t), clockwork.NewRealClock())
	require.NoError(t, err)
	raw, err := os.ReadFile(signed)
	require.NoError(t, err)
	h, err := a.service.Submit(raw)
	require.NoError(t, err)
	require.Equal(t, lines[0], h.String())
	require.NoError(t, a.Close())

	cfgFile := filepath.Join(dir, "netmap.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
storage:
  backends:
    - name: localfs
      config: {localfs-dir: `+filepath.Join(dir, "store")+`}
publish:
  backend: localfs
  dir: `+filepath.Join(dir, "published")+`
`), 0o644))
	out := execute(t, "build", "--config", cfgFile)
	require.Contains(t, out, "entries 1")

	published, err := os.ReadFile(filepath.Join(dir, "published", networkMapSlot+".ser"))
	require.NoError(t, err)
	require.NotEmpty(t, published)
}

func TestCLI_BundleRoundTrip(t *testing.T) {
	dir := t.TempDir()
	keyFile, certFile := issueNode(t, dir, "O=Bob,L=New York,C=US")
	signed := filepath.Join(dir, "node.ser")
	execute(t, "nodeinfo", "sign", "--key", keyFile, "--cert", certFile,
		"--address", "bob.example.net:10002", "--out", signed)
	raw, err := os.ReadFile(signed)
	require.NoError(t, err)

	writeConfig := func(name string) string {
		path := filepath.Join(dir, name+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
storage:
  backends:
    - name: sqlite
      config: {sqlite-path: `+filepath.Join(dir, name+".db")+`}
`), 0o644))
		return path
	}
	src, dst := writeConfig("src"), writeConfig("dst")

	cfg, err := config.Load(src, nil)
	require.NoError(t, err)
	a, err := newApp(cfg, zaptest.NewLogger(t), clockwork.NewRealClock())
	require.NoError(t, err)
	_, err = a.service.Submit(raw)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	tarFile := filepath.Join(dir, "bundle.tar")
	execute(t, "bundle", "export", "--config", src, "--out", tarFile)
	out := execute(t, "bundle", "import", "--config", dst, "--in", tarFile)
	require.Contains(t, out, "imported 1, rejected 0")
}

func TestOpenSinks(t *testing.T) {
	dir := t.TempDir()
	for _, pc := range []config.PublishConfig{
		{Backend: "memory"},
		{Backend: "localfs", Dir: filepath.Join(dir, "fs")},
		{Backend: "sqlite", SQLitePath: filepath.Join(dir, "publish.db")},
		{Backend: "leveldb", LevelDBDir: filepath.Join(dir, "ldb")},
	} {
		t.Run(pc.Backend, func(t *testing.T) {
			m, p, closeFn, err := openSinks(pc)
			require.NoError(t, err)
			if closeFn != nil {
				defer closeFn()
			}
			require.NoError(t, m.Put([]byte("map")))
			_, err = p.Get()
			require.True(t, storage.IsNotFound(err), "slots must be independent, got %v", err)
			got, err := m.Get()
			require.NoError(t, err)
			require.Equal(t, []byte("map"), got)
		})
	}
	_, _, _, err := openSinks(config.PublishConfig{Backend: "s3"})
	require.Error(t, err)
}

func TestOpenTrust_DevMode(t *testing.T) {
	ts, err := openTrust(config.Default())
	require.NoError(t, err)
	require.Equal(t, 2, ts.Len())

	cfg := config.Default()
	cfg.Trust.DevMode = false
	_, err = openTrust(cfg)
	require.Error(t, err)
}

func TestServe_RefusesAuthorityOutsideTrust(t *testing.T) {
	dir := t.TempDir()
	p := func(f string) string { return filepath.Join(dir, f) }
	execute(t, "ca", "init-root", "--name", "CN=Rogue,O=Rogue,L=London,C=GB",
		"--key-out", p("rogue.key"), "--cert-out", p("rogue.pem"))
	execute(t, "ca", "issue-authority", "--root-key", p("rogue.key"), "--root-cert", p("rogue.pem"),
		"--key-out", p("network-map.key"), "--cert-out", p("network-map.pem"))

	cfgFile := p("netmap.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
listen: 127.0.0.1:0
trust:
  dev_mode: true
authority:
  key_file: `+p("network-map.key")+`
  cert_file: `+p("network-map.pem")+`
`), 0o644))

	cfg, err := config.Load(cfgFile, nil)
	require.NoError(t, err)
	a, err := newApp(cfg, zaptest.NewLogger(t), clockwork.NewRealClock())
	require.NoError(t, err)
	defer a.Close()
	_, err = a.authority.Get()
	require.NoError(t, err, "the provisioned files load")
	_, err = a.service.CheckAuthority()
	require.True(t, netmap.IsKind(err, netmap.KindAuthorityUnavailable), "got %v", err)
	require.Equal(t, "NM-SVC-001", netmap.RuleID(err))

	err = executeErr(t, "serve", "--config", cfgFile)
	require.Error(t, err)
	require.True(t, netmap.IsKind(err, netmap.KindAuthorityUnavailable), "got %v", err)
}
