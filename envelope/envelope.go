// Package envelope implements the signed-document container: raw canonical
// payload bytes, a signature over them and the signer's certificate path.
//
// Verification always precedes interpretation. The only way to obtain a typed
// payload is Unwrap, which checks the certificate path and signature first.
package envelope

import (
	"fmt"

	"xdao.co/netmap/cert"
	"xdao.co/netmap/digest"
	"xdao.co/netmap/keys"
	"xdao.co/netmap/netmap"
)

// Signature is a signature over the envelope's Raw bytes together with the
// certificate path of the signer, leaf first.
type Signature struct {
	HashAlg  string              `cbor:"hashAlg"`
	Bytes    []byte              `cbor:"bytes"`
	CertPath []*cert.Certificate `cbor:"certPath"`
}

// Signed carries a payload of type T in serialized form.
type Signed[T any] struct {
	Raw []byte    `cbor:"raw"`
	Sig Signature `cbor:"sig"`
}

// Wrap serializes payload canonically and signs it with key. path[0] must be
// the certificate for key.
func Wrap[T any](payload T, key *keys.KeyPair, path []*cert.Certificate, hashAlg string) (*Signed[T], error) {
	if key == nil || len(path) == 0 || path[0] == nil {
		return nil, fmt.Errorf("envelope: signer key and certificate path are required")
	}
	if path[0].Scheme != key.Scheme || string(path[0].PublicKey) != string(key.Public) {
		return nil, fmt.Errorf("envelope: signer key does not match leaf certificate %q", path[0].Subject)
	}
	if hashAlg == "" {
		hashAlg = keys.DefaultHashAlg
	}
	raw, err := netmap.Marshal(payload)
	if err != nil {
		return nil, err
	}
	sig, err := key.SignMessage(hashAlg, raw)
	if err != nil {
		return nil, fmt.Errorf("envelope: sign: %w", err)
	}
	return &Signed[T]{
		Raw: raw,
		Sig: Signature{
			HashAlg:  hashAlg,
			Bytes:    sig,
			CertPath: append([]*cert.Certificate(nil), path...),
		},
	}, nil
}

// Parse decodes envelope bytes without verifying or interpreting the payload.
// Anything that is not a canonical, complete envelope is KindMalformed.
func Parse[T any](b []byte) (*Signed[T], error) {
	var s Signed[T]
	if err := netmap.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	if len(s.Raw) == 0 {
		return nil, netmap.NewError(netmap.KindMalformed, "NM-ENV-001", "envelope has no payload")
	}
	if len(s.Sig.Bytes) == 0 {
		return nil, netmap.NewError(netmap.KindMalformed, "NM-ENV-002", "envelope is unsigned")
	}
	if len(s.Sig.CertPath) == 0 {
		return nil, netmap.NewError(netmap.KindMalformed, "NM-ENV-003", "envelope has no certificate path")
	}
	if _, err := keys.Digest(s.Sig.HashAlg, nil); err != nil {
		return nil, netmap.WrapError(netmap.KindMalformed, "NM-ENV-004", "unsupported signature hash", err)
	}
	return &s, nil
}

// Open parses b, verifies it and decodes the payload.
func Open[T any](b []byte, trust *cert.TrustStore, opts cert.VerifyOptions) (*Signed[T], T, error) {
	var zero T
	s, err := Parse[T](b)
	if err != nil {
		return nil, zero, err
	}
	v, err := s.Unwrap(trust, opts)
	if err != nil {
		return nil, zero, err
	}
	return s, v, nil
}

// Marshal returns the canonical envelope bytes.
func (s *Signed[T]) Marshal() ([]byte, error) {
	return netmap.Marshal(s)
}

// Hash identifies the payload: the hash of Raw.
func (s *Signed[T]) Hash() digest.SecureHash {
	return digest.Of(s.Raw)
}

// Signer returns the leaf certificate.
func (s *Signed[T]) Signer() *cert.Certificate {
	if len(s.Sig.CertPath) == 0 {
		return nil
	}
	return s.Sig.CertPath[0]
}

// Verify checks the certificate path against trust and the signature over Raw.
func (s *Signed[T]) Verify(trust *cert.TrustStore, opts cert.VerifyOptions) error {
	if err := cert.VerifyChain(s.Sig.CertPath, trust, opts); err != nil {
		return err
	}
	leaf := s.Sig.CertPath[0]
	if !keys.VerifyMessage(leaf.Scheme, leaf.PublicKey, s.Sig.HashAlg, s.Raw, s.Sig.Bytes) {
		return netmap.NewError(netmap.KindInvalidSignature, "NM-ENV-010",
			fmt.Sprintf("payload signature by %q does not verify", leaf.Subject))
	}
	return nil
}

type validator interface {
	Validate() error
}

// Unwrap verifies s and only then decodes Raw as T. Payloads with a
// Validate method are validated too.
func (s *Signed[T]) Unwrap(trust *cert.TrustStore, opts cert.VerifyOptions) (T, error) {
	var v T
	if err := s.Verify(trust, opts); err != nil {
		return v, err
	}
	if err := netmap.Unmarshal(s.Raw, &v); err != nil {
		var zero T
		return zero, netmap.WrapError(netmap.KindMalformed, "NM-ENV-020", "payload does not match schema", err)
	}
	if val, ok := any(v).(validator); ok {
		if err := val.Validate(); err != nil {
			var zero T
			return zero, err
		}
	}
	return v, nil
}
