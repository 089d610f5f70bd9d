package bundle_test

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap/zaptest"

	"xdao.co/netmap/digest"
	"xdao.co/netmap/internal/netmaptest"
	"xdao.co/netmap/keys"
	"xdao.co/netmap/netmap"
	"xdao.co/netmap/registry"
	"xdao.co/netmap/storage"
	"xdao.co/netmap/storage/bundle"
)

func newRegistry(t *testing.T, pki *netmaptest.PKI) *registry.Registry {
	t.Helper()
	r, err := registry.New(storage.NewMemoryStore(), pki.Trust,
		registry.WithLogger(zaptest.NewLogger(t)),
		registry.WithClock(clockwork.NewFakeClockAt(netmaptest.Now)),
	)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func populated(t *testing.T, pki *netmaptest.PKI, names ...string) (*registry.Registry, []digest.SecureHash) {
	t.Helper()
	r := newRegistry(t, pki)
	var hashes []digest.SecureHash
	for i, name := range names {
		h, err := r.Submit(pki.NewNode(t, name).Signed(t, int64(i+1)))
		if err != nil {
			t.Fatal(err)
		}
		hashes = append(hashes, h)
	}
	return r, digest.SortedUnique(hashes)
}

func TestBundle_ExportIsDeterministic(t *testing.T) {
	pki := netmaptest.NewPKI(t, keys.Ed25519)
	src, _ := populated(t, pki, "O=Alice,L=Paris,C=FR", "O=Bob,L=New York,C=US", "O=Carol,L=Oslo,C=NO")

	var a, b bytes.Buffer
	if err := bundle.Export(&a, src, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}
	if err := bundle.Export(&b, src, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatalf("expected deterministic bundle bytes")
	}
}

func TestBundle_ExportLayout(t *testing.T) {
	pki := netmaptest.NewPKI(t, keys.Ed25519)
	src, hashes := populated(t, pki, "O=Alice,L=Paris,C=FR", "O=Bob,L=New York,C=US")

	var buf bytes.Buffer
	if err := bundle.Export(&buf, src, bundle.ExportOptions{IncludeIndex: true, NetworkMap: []byte("map")}); err != nil {
		t.Fatal(err)
	}

	var names []string
	var index []byte
	tr := tar.NewReader(&buf)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if !h.ModTime.Equal(time.Unix(0, 0)) {
			t.Fatalf("%s: unexpected modtime %v", h.Name, h.ModTime)
		}
		names = append(names, h.Name)
		if h.Name == "index.json" {
			index, _ = io.ReadAll(tr)
		}
	}

	want := []string{
		"nodeinfos/" + hashes[0].String(),
		"nodeinfos/" + hashes[1].String(),
		"network-map.ser",
		"index.json",
	}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("entries = %v, want %v", names, want)
	}

	var idx struct {
		Version int `json:"version"`
		Entries []struct {
			Hash string `json:"hash"`
			CID  string `json:"cid"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(index, &idx); err != nil {
		t.Fatal(err)
	}
	if idx.Version != bundle.FormatVersion || len(idx.Entries) != 2 {
		t.Fatalf("unexpected index: %s", index)
	}
	if idx.Entries[0].CID != hashes[0].CID().String() {
		t.Fatalf("cid = %s, want %s", idx.Entries[0].CID, hashes[0].CID())
	}
}

func TestBundle_RoundTrip(t *testing.T) {
	pki := netmaptest.NewPKI(t, keys.Ed25519)
	src, hashes := populated(t, pki, "O=Alice,L=Paris,C=FR", "O=Bob,L=New York,C=US")

	var buf bytes.Buffer
	if err := bundle.Export(&buf, src, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}

	dst := newRegistry(t, pki)
	rep, err := bundle.Import(bytes.NewReader(buf.Bytes()), dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Imported) != 2 || len(rep.Rejected) != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}

	got, err := dst.ListAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(hashes) {
		t.Fatalf("imported %d entries, want %d", len(got), len(hashes))
	}
	for _, h := range hashes {
		a, err := src.Get(h)
		if err != nil {
			t.Fatal(err)
		}
		b, err := dst.Get(h)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(a, b) {
			t.Fatalf("%s: payload mismatch", h)
		}
	}
}

func TestBundle_ImportReverifies(t *testing.T) {
	foreign := netmaptest.ForeignPKI(t, keys.Ed25519)
	src, hashes := populated(t, foreign, "O=Mallory,L=Paris,C=FR")

	var buf bytes.Buffer
	if err := bundle.Export(&buf, src, bundle.ExportOptions{}); err != nil {
		t.Fatal(err)
	}

	dst := newRegistry(t, netmaptest.NewPKI(t, keys.Ed25519))
	_, err := bundle.Import(bytes.NewReader(buf.Bytes()), dst)
	if !netmap.IsKind(err, netmap.KindUntrustedRoot) {
		t.Fatalf("expected UntrustedRoot, got %v", err)
	}

	rep, err := bundle.ImportWithOptions(bytes.NewReader(buf.Bytes()), dst, bundle.ImportOptions{KeepGoing: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Rejected) != 1 || rep.Rejected[0].Hash != hashes[0] {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if all, _ := dst.ListAll(); len(all) != 0 {
		t.Fatalf("untrusted entry was stored")
	}
}

func TestBundle_ImportRejectsHashMismatch(t *testing.T) {
	pki := netmaptest.NewPKI(t, keys.Ed25519)
	raw := pki.NewNode(t, "O=Alice,L=Paris,C=FR").Signed(t, 1)
	other := digest.Of([]byte("other"))

	// Name says "other" but the envelope hashes elsewhere.
	b := makeDeterministicTar(t, "nodeinfos/"+other.String(), raw)

	dst := newRegistry(t, pki)
	if _, err := bundle.Import(bytes.NewReader(b), dst); err == nil || !strings.Contains(err.Error(), "holds node info") {
		t.Fatalf("expected hash mismatch, got %v", err)
	}
	if all, _ := dst.ListAll(); len(all) != 0 {
		t.Fatalf("mismatched entry was stored: %v", all)
	}

	rep, err := bundle.ImportWithOptions(bytes.NewReader(b), dst, bundle.ImportOptions{KeepGoing: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Rejected) != 1 || rep.Rejected[0].Hash != other || len(rep.Imported) != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if all, _ := dst.ListAll(); len(all) != 0 {
		t.Fatalf("mismatched entry was stored: %v", all)
	}
}

func TestBundle_ImportRejectsMalformedEntry(t *testing.T) {
	dst := newRegistry(t, netmaptest.NewPKI(t, keys.Ed25519))
	name := digest.Of([]byte("garbage"))
	b := makeDeterministicTar(t, "nodeinfos/"+name.String(), []byte("garbage"))
	if _, err := bundle.Import(bytes.NewReader(b), dst); !netmap.IsKind(err, netmap.KindMalformed) {
		t.Fatalf("expected MalformedInput, got %v", err)
	}
}

func TestBundle_ImportFailClosed(t *testing.T) {
	pki := netmaptest.NewPKI(t, keys.Ed25519)
	dst := newRegistry(t, pki)

	cases := map[string][]byte{
		"unknown":  makeDeterministicTar(t, "blocks/x", []byte("x")),
		"traverse": makeDeterministicTar(t, "nodeinfos/../x", []byte("x")),
		"badname":  makeDeterministicTar(t, "nodeinfos/not-a-hash", []byte("x")),
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := bundle.Import(bytes.NewReader(b), dst); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	rep, err := bundle.ImportWithOptions(bytes.NewReader(cases["unknown"]), dst, bundle.ImportOptions{IgnoreUnknown: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Imported) != 0 {
		t.Fatalf("unexpected import: %+v", rep)
	}
}

func makeDeterministicTar(t *testing.T, name string, content []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	h := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  time.Unix(0, 0).UTC(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(h); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
