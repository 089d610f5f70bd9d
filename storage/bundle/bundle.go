// Package bundle exports registry contents to a deterministic TAR archive and
// imports such archives back through verified submission.
package bundle

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"xdao.co/netmap/digest"
	"xdao.co/netmap/envelope"
	"xdao.co/netmap/netmap"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

const entryDir = "nodeinfos/"

var epoch0 = time.Unix(0, 0).UTC()

// Source is the read side of a registry.
type Source interface {
	ListAll() ([]digest.SecureHash, error)
	Get(h digest.SecureHash) ([]byte, error)
}

// Submitter is the write side of a registry.
type Submitter interface {
	Submit(raw []byte) (digest.SecureHash, error)
}

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
	// NetworkMap, when set, is stored as network-map.ser for reference. It is
	// never imported.
	NetworkMap []byte
}

// Export writes a deterministic TAR bundle containing every signed node info in src.
//
// The bundle bytes are deterministic: entry order is by hash and TAR headers are normalized.
func Export(w io.Writer, src Source, opts ExportOptions) error {
	if src == nil {
		return fmt.Errorf("bundle: nil source")
	}
	hashes, err := src.ListAll()
	if err != nil {
		return err
	}
	hashes = digest.SortedUnique(hashes)

	tw := tar.NewWriter(w)
	entries := make([]indexEntry, 0, len(hashes))
	for _, h := range hashes {
		b, err := src.Get(h)
		if err != nil {
			_ = tw.Close()
			return fmt.Errorf("bundle: %s: %w", h, err)
		}
		if err := writeFile(tw, entryDir+h.String(), b); err != nil {
			_ = tw.Close()
			return err
		}
		entries = append(entries, indexEntry{Hash: h.String(), CID: h.CID().String(), Size: len(b)})
	}

	if len(opts.NetworkMap) > 0 {
		if err := writeFile(tw, "network-map.ser", opts.NetworkMap); err != nil {
			_ = tw.Close()
			return err
		}
	}

	if opts.IncludeIndex {
		b, err := marshalCanonicalIndexJSON(indexJSON{
			Version:   FormatVersion,
			Multihash: "sha2-256",
			Entries:   entries,
		})
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, "index.json", b); err != nil {
			_ = tw.Close()
			return err
		}
	}

	return tw.Close()
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to return an error.
	IgnoreUnknown bool
	// KeepGoing records rejected submissions in the report instead of
	// stopping at the first one.
	KeepGoing bool
}

// Rejection is a bundle entry the registry refused.
type Rejection struct {
	Hash digest.SecureHash
	Err  error
}

// Report summarizes an import.
type Report struct {
	Imported []digest.SecureHash
	Rejected []Rejection
}

// Import reads a bundle from r and submits every node info to dst.
//
// Default behavior is fail-closed: unknown entries and rejected submissions cause an error.
func Import(r io.Reader, dst Submitter) (Report, error) {
	return ImportWithOptions(r, dst, ImportOptions{})
}

// ImportWithOptions reads a bundle from r and submits every node info to dst.
//
// An entry whose envelope does not hash to its name is rejected before it
// reaches dst. Everything else is verified by dst.
func ImportWithOptions(r io.Reader, dst Submitter, opts ImportOptions) (Report, error) {
	var rep Report
	if dst == nil {
		return rep, fmt.Errorf("bundle: nil submitter")
	}

	tr := tar.NewReader(r)
	seen := map[digest.SecureHash]struct{}{}

	for {
		h, err := tr.Next()
		if err == io.EOF {
			return rep, nil
		}
		if err != nil {
			return rep, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return rep, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return rep, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		// Non-authoritative metadata.
		if name == "index.json" || name == "network-map.ser" {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}

		if !strings.HasPrefix(name, entryDir) {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return rep, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		want, perr := digest.Parse(strings.TrimPrefix(name, entryDir))
		if perr != nil {
			return rep, fmt.Errorf("bundle: invalid entry name %s: %w", name, perr)
		}
		if _, ok := seen[want]; ok {
			return rep, fmt.Errorf("bundle: duplicate entry: %s", want)
		}
		seen[want] = struct{}{}

		payload, rerr := io.ReadAll(tr)
		if rerr != nil {
			return rep, rerr
		}
		got, serr := submitEntry(dst, want, payload)
		if serr != nil {
			if !opts.KeepGoing {
				return rep, fmt.Errorf("bundle: %s: %w", want, serr)
			}
			rep.Rejected = append(rep.Rejected, Rejection{Hash: want, Err: serr})
			continue
		}
		rep.Imported = append(rep.Imported, got)
	}
}

type indexJSON struct {
	Version   int          `json:"version"`
	Multihash string       `json:"multihash"`
	Entries   []indexEntry `json:"entries"`
}

type indexEntry struct {
	Hash string `json:"hash"`
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

func marshalCanonicalIndexJSON(idx indexJSON) ([]byte, error) {
	// indexJSON is composed only of structs + slices; encoding/json will be deterministic.
	b, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
		out = append(out, part)
	}
	return strings.Join(out, "/")
}

func submitEntry(dst Submitter, want digest.SecureHash, payload []byte) (digest.SecureHash, error) {
	env, err := envelope.Parse[netmap.NodeInfo](payload)
	if err != nil {
		return digest.Zero, err
	}
	if h := env.Hash(); h != want {
		return digest.Zero, fmt.Errorf("bundle: entry %s holds node info %s", want, h)
	}
	got, err := dst.Submit(payload)
	if err != nil {
		return digest.Zero, err
	}
	if got != want {
		return digest.Zero, fmt.Errorf("bundle: entry %s stored as %s", want, got)
	}
	return got, nil
}
