// Package digest provides the content hash used to identify node infos,
// network parameters and network maps.
//
// A SecureHash is the 32-byte SHA2-256 digest of canonical bytes. It renders
// as lowercase hex for storage keys and URLs, and can also be expressed as an
// IPFS-compatible CIDv1 (raw + sha2-256) for interop with content-addressed tooling.
package digest

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Size is the length of a SecureHash in bytes.
const Size = 32

// SecureHash is a SHA2-256 digest.
type SecureHash [Size]byte

// Zero is the all-zero hash. It never identifies real content.
var Zero SecureHash

var ErrInvalidHash = errors.New("digest: invalid hash")

// Of returns the SHA2-256 hash of data.
func Of(data []byte) SecureHash {
	var h SecureHash
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		// multihash.Sum only errors for unknown codes or bad lengths; with
		// SHA2_256 and -1 length this is unreachable.
		panic(fmt.Sprintf("digest: sha2-256 multihash: %v", err))
	}
	dec, err := multihash.Decode(sum)
	if err != nil {
		panic(fmt.Sprintf("digest: decode multihash: %v", err))
	}
	copy(h[:], dec.Digest)
	return h
}

// FromBytes copies b into a SecureHash. b must be exactly Size bytes.
func FromBytes(b []byte) (SecureHash, error) {
	var h SecureHash
	if len(b) != Size {
		return h, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidHash, Size, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Parse accepts either 64 hex characters or a CIDv1 (raw + sha2-256) string.
func Parse(s string) (SecureHash, error) {
	s = strings.TrimSpace(s)
	if len(s) == hex.EncodedLen(Size) {
		b, err := hex.DecodeString(s)
		if err == nil {
			return FromBytes(b)
		}
	}
	id, err := cid.Decode(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidHash, s)
	}
	return FromCID(id)
}

// FromCID extracts the digest from a CIDv1 raw sha2-256 CID.
func FromCID(id cid.Cid) (SecureHash, error) {
	if !id.Defined() {
		return Zero, ErrInvalidHash
	}
	if id.Version() != 1 || id.Type() != cid.Raw {
		return Zero, fmt.Errorf("%w: want CIDv1 raw, got v%d codec 0x%x", ErrInvalidHash, id.Version(), id.Type())
	}
	dec, err := multihash.Decode(id.Hash())
	if err != nil {
		return Zero, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	if dec.Code != multihash.SHA2_256 {
		return Zero, fmt.Errorf("%w: unsupported multihash code 0x%x", ErrInvalidHash, dec.Code)
	}
	return FromBytes(dec.Digest)
}

// String returns the lowercase hex encoding.
func (h SecureHash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash.
func (h SecureHash) IsZero() bool {
	return h == Zero
}

// CID returns h as a CIDv1 with the raw multicodec.
func (h SecureHash) CID() cid.Cid {
	mh, err := multihash.Encode(h[:], multihash.SHA2_256)
	if err != nil {
		return cid.Undef
	}
	return cid.NewCidV1(cid.Raw, mh)
}

// Compare orders hashes lexicographically by bytes.
func (h SecureHash) Compare(other SecureHash) int {
	return bytes.Compare(h[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (h SecureHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *SecureHash) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// MarshalCBOR encodes h as a CBOR byte string.
func (h SecureHash) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(h[:])
}

// UnmarshalCBOR requires a byte string of exactly Size bytes.
func (h *SecureHash) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	parsed, err := FromBytes(b)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Sort orders hashes in place, ascending by bytes.
func Sort(hashes []SecureHash) {
	sort.Slice(hashes, func(i, j int) bool { return hashes[i].Compare(hashes[j]) < 0 })
}

// SortedUnique returns a sorted copy of hashes with duplicates removed.
func SortedUnique(hashes []SecureHash) []SecureHash {
	out := append([]SecureHash(nil), hashes...)
	Sort(out)
	if len(out) < 2 {
		return out
	}
	w := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[w-1] {
			out[w] = out[i]
			w++
		}
	}
	return out[:w]
}
