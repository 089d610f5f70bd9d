// Package cert implements the certificates that bind signing keys to names and
// roles, and verification of certificate paths up to a trusted root.
//
// Certificates are canonical CBOR documents rather than X.509: they carry
// dilithium3 keys as readily as ed25519 ones and share one codec with the
// documents they vouch for.
package cert

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"xdao.co/netmap/digest"
	"xdao.co/netmap/keys"
	"xdao.co/netmap/netmap"
)

// Version is the only certificate format version currently produced.
const Version = 1

// Certificate binds PublicKey to Subject with usage Role, signed by Issuer.
type Certificate struct {
	Version       int               `cbor:"version"`
	Serial        uint64            `cbor:"serial"`
	Role          Role              `cbor:"role"`
	Subject       string            `cbor:"subject"`
	Issuer        string            `cbor:"issuer"`
	IssuerKeyHash digest.SecureHash `cbor:"issuerKeyHash"`
	Scheme        keys.Scheme       `cbor:"scheme"`
	PublicKey     []byte            `cbor:"publicKey"`
	NotBefore     int64             `cbor:"notBefore"`
	NotAfter      int64             `cbor:"notAfter"`
	HashAlg       string            `cbor:"hashAlg"`
	Signature     []byte            `cbor:"signature"`
}

// Template carries the caller-chosen fields of a new certificate.
type Template struct {
	Role      Role
	Subject   string
	Serial    uint64 // zero picks a random serial
	NotBefore time.Time
	NotAfter  time.Time
	HashAlg   string // empty uses keys.DefaultHashAlg
}

// SelfSign creates a root certificate for kp.
func SelfSign(kp *keys.KeyPair, tmpl Template) (*Certificate, error) {
	if tmpl.Role != RoleRootCA {
		return nil, fmt.Errorf("cert: only %s certificates may be self-signed", RoleRootCA)
	}
	c, err := newUnsigned(kp.Scheme, kp.Public, tmpl)
	if err != nil {
		return nil, err
	}
	c.Issuer = c.Subject
	c.IssuerKeyHash = digest.Of(kp.Public)
	if err := c.sign(kp); err != nil {
		return nil, err
	}
	return c, nil
}

// Issue creates a certificate for subjectKey signed by issuer.
func Issue(issuer *Certificate, issuerKey *keys.KeyPair, scheme keys.Scheme, subjectKey []byte, tmpl Template) (*Certificate, error) {
	if issuer == nil || issuerKey == nil {
		return nil, fmt.Errorf("cert: missing issuer")
	}
	if !CanIssue(issuer.Role, tmpl.Role) {
		return nil, fmt.Errorf("cert: %s may not issue %s", issuer.Role, tmpl.Role)
	}
	if issuer.Scheme != issuerKey.Scheme || string(issuer.PublicKey) != string(issuerKey.Public) {
		return nil, fmt.Errorf("cert: issuer key does not match issuer certificate")
	}
	c, err := newUnsigned(scheme, subjectKey, tmpl)
	if err != nil {
		return nil, err
	}
	c.Issuer = issuer.Subject
	c.IssuerKeyHash = digest.Of(issuer.PublicKey)
	if err := c.sign(issuerKey); err != nil {
		return nil, err
	}
	return c, nil
}

func newUnsigned(scheme keys.Scheme, pub []byte, tmpl Template) (*Certificate, error) {
	if !tmpl.Role.Valid() {
		return nil, fmt.Errorf("cert: unknown role %q", tmpl.Role)
	}
	if err := ValidateName(tmpl.Subject); err != nil {
		return nil, err
	}
	if err := keys.ValidatePublicKey(scheme, pub); err != nil {
		return nil, fmt.Errorf("cert: %w", err)
	}
	if tmpl.NotBefore.IsZero() || tmpl.NotAfter.IsZero() || !tmpl.NotAfter.After(tmpl.NotBefore) {
		return nil, fmt.Errorf("cert: invalid validity window")
	}
	serial := tmpl.Serial
	if serial == 0 {
		var b [8]byte
		if _, err := rand.Read(b[:]); err != nil {
			return nil, fmt.Errorf("cert: serial: %w", err)
		}
		serial = binary.BigEndian.Uint64(b[:]) | 1
	}
	hashAlg := tmpl.HashAlg
	if hashAlg == "" {
		hashAlg = keys.DefaultHashAlg
	}
	return &Certificate{
		Version:   Version,
		Serial:    serial,
		Role:      tmpl.Role,
		Subject:   tmpl.Subject,
		Scheme:    scheme,
		PublicKey: append([]byte(nil), pub...),
		NotBefore: tmpl.NotBefore.Unix(),
		NotAfter:  tmpl.NotAfter.Unix(),
		HashAlg:   hashAlg,
	}, nil
}

func (c *Certificate) sign(issuerKey *keys.KeyPair) error {
	tbs, err := c.tbs()
	if err != nil {
		return err
	}
	sig, err := issuerKey.SignMessage(c.HashAlg, tbs)
	if err != nil {
		return fmt.Errorf("cert: sign: %w", err)
	}
	c.Signature = sig
	return nil
}

// tbs returns the signed portion: the canonical encoding with no signature.
func (c *Certificate) tbs() ([]byte, error) {
	cp := *c
	cp.Signature = nil
	return netmap.Marshal(&cp)
}

// Encode returns the canonical encoding of c.
func (c *Certificate) Encode() ([]byte, error) {
	return netmap.Marshal(c)
}

// Decode strictly parses a canonical certificate encoding.
func Decode(b []byte) (*Certificate, error) {
	var c Certificate
	if err := netmap.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if err := c.checkStructure(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Fingerprint identifies c by the hash of its canonical encoding.
func (c *Certificate) Fingerprint() digest.SecureHash {
	b, err := c.Encode()
	if err != nil {
		return digest.Zero
	}
	return digest.Of(b)
}

// ValidAt reports whether t falls inside the validity window.
func (c *Certificate) ValidAt(t time.Time) bool {
	s := t.Unix()
	return s >= c.NotBefore && s <= c.NotAfter
}

// IsSelfIssued reports whether c names itself as issuer with its own key.
func (c *Certificate) IsSelfIssued() bool {
	return c.Issuer == c.Subject && c.IssuerKeyHash == digest.Of(c.PublicKey)
}

// CheckSignatureFrom verifies that issuer signed c. It does not check roles.
func (c *Certificate) CheckSignatureFrom(issuer *Certificate) error {
	if c.Issuer != issuer.Subject || c.IssuerKeyHash != digest.Of(issuer.PublicKey) {
		return netmap.NewError(netmap.KindInvalidSignature, "NM-CERT-014",
			fmt.Sprintf("certificate %q is not issued by %q", c.Subject, issuer.Subject))
	}
	tbs, err := c.tbs()
	if err != nil {
		return err
	}
	if !keys.VerifyMessage(issuer.Scheme, issuer.PublicKey, c.HashAlg, tbs, c.Signature) {
		return netmap.NewError(netmap.KindInvalidSignature, "NM-CERT-015",
			fmt.Sprintf("certificate %q signature invalid", c.Subject))
	}
	return nil
}

func (c *Certificate) checkStructure() error {
	if c.Version != Version {
		return netmap.NewError(netmap.KindMalformed, "NM-CERT-002", fmt.Sprintf("unsupported certificate version %d", c.Version))
	}
	if !c.Role.Valid() {
		return netmap.NewError(netmap.KindMalformed, "NM-CERT-003", fmt.Sprintf("unknown certificate role %q", c.Role))
	}
	if err := ValidateName(c.Subject); err != nil {
		return netmap.WrapError(netmap.KindMalformed, "NM-CERT-004", "invalid subject", err)
	}
	if err := ValidateName(c.Issuer); err != nil {
		return netmap.WrapError(netmap.KindMalformed, "NM-CERT-004", "invalid issuer", err)
	}
	if err := keys.ValidatePublicKey(c.Scheme, c.PublicKey); err != nil {
		return netmap.WrapError(netmap.KindMalformed, "NM-CERT-005", "invalid public key", err)
	}
	if _, err := keys.Digest(c.HashAlg, nil); err != nil {
		return netmap.WrapError(netmap.KindMalformed, "NM-CERT-006", "invalid hash algorithm", err)
	}
	if len(c.Signature) == 0 {
		return netmap.NewError(netmap.KindMalformed, "NM-CERT-007", "certificate is unsigned")
	}
	return nil
}

var nameAttributes = map[string]bool{"CN": true, "OU": true, "O": true, "L": true, "ST": true, "C": true}

// ValidateName checks a distinguished name of the form "CN=..,O=..,L=..,C=..".
// O, L and C are mandatory; attributes may not repeat.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("cert: empty distinguished name")
	}
	seen := map[string]bool{}
	for _, part := range strings.Split(name, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		k = strings.ToUpper(strings.TrimSpace(k))
		if !ok || strings.TrimSpace(v) == "" || !nameAttributes[k] {
			return fmt.Errorf("cert: invalid name attribute %q in %q", part, name)
		}
		if seen[k] {
			return fmt.Errorf("cert: duplicate name attribute %q in %q", k, name)
		}
		seen[k] = true
	}
	for _, k := range []string{"O", "L", "C"} {
		if !seen[k] {
			return fmt.Errorf("cert: name %q is missing %s", name, k)
		}
	}
	return nil
}
