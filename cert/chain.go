package cert

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"xdao.co/netmap/digest"
	"xdao.co/netmap/netmap"
)

// TrustStore is the set of root certificates chains may end at.
// It is safe for concurrent use.
type TrustStore struct {
	mu    sync.RWMutex
	roots map[digest.SecureHash]*Certificate
}

// NewTrustStore returns a store holding roots.
func NewTrustStore(roots ...*Certificate) (*TrustStore, error) {
	ts := &TrustStore{roots: map[digest.SecureHash]*Certificate{}}
	for _, r := range roots {
		if err := ts.Add(r); err != nil {
			return nil, err
		}
	}
	return ts, nil
}

// Add trusts root. Only self-signed root CA certificates are accepted.
func (ts *TrustStore) Add(root *Certificate) error {
	if root == nil {
		return fmt.Errorf("cert: nil trust root")
	}
	if err := root.checkStructure(); err != nil {
		return err
	}
	if root.Role != RoleRootCA || !root.IsSelfIssued() {
		return fmt.Errorf("cert: trust root %q is not a self-signed %s", root.Subject, RoleRootCA)
	}
	if err := root.CheckSignatureFrom(root); err != nil {
		return fmt.Errorf("cert: trust root %q: %w", root.Subject, err)
	}
	ts.mu.Lock()
	ts.roots[root.Fingerprint()] = root
	ts.mu.Unlock()
	return nil
}

// Contains reports whether c is itself a trusted root.
func (ts *TrustStore) Contains(c *Certificate) bool {
	if ts == nil || c == nil {
		return false
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	_, ok := ts.roots[c.Fingerprint()]
	return ok
}

// Roots returns the trusted roots ordered by fingerprint.
func (ts *TrustStore) Roots() []*Certificate {
	if ts == nil {
		return nil
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	fps := make([]digest.SecureHash, 0, len(ts.roots))
	for fp := range ts.roots {
		fps = append(fps, fp)
	}
	digest.Sort(fps)
	out := make([]*Certificate, 0, len(fps))
	for _, fp := range fps {
		out = append(out, ts.roots[fp])
	}
	return out
}

// Len returns the number of trusted roots.
func (ts *TrustStore) Len() int {
	if ts == nil {
		return 0
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.roots)
}

// issuerOf finds a trusted root that could have issued c.
func (ts *TrustStore) issuerOf(c *Certificate) *Certificate {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	var candidates []*Certificate
	for _, r := range ts.roots {
		if r.Subject == c.Issuer && digest.Of(r.PublicKey) == c.IssuerKeyHash {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Fingerprint().Compare(candidates[j].Fingerprint()) < 0
	})
	return candidates[0]
}

// VerifyOptions constrains chain verification.
type VerifyOptions struct {
	// LeafRoles lists the roles acceptable for path[0]. Empty accepts any.
	LeafRoles []Role
	// Now enables validity window checks when non-zero.
	Now time.Time
}

// VerifyChain checks a certificate path ordered leaf first.
//
// Every certificate must be signed by its successor with a role allowed to
// issue it. The last certificate must either be a trusted root or be issued
// by one. Failures are *netmap.Error values: KindMalformed for structural
// problems, KindInvalidSignature for broken links and KindUntrustedRoot when
// the path does not end at trust.
func VerifyChain(path []*Certificate, trust *TrustStore, opts VerifyOptions) error {
	if len(path) == 0 {
		return netmap.NewError(netmap.KindMalformed, "NM-CERT-001", "empty certificate path")
	}
	for i, c := range path {
		if c == nil {
			return netmap.NewError(netmap.KindMalformed, "NM-CERT-001", fmt.Sprintf("nil certificate at position %d", i))
		}
		if err := c.checkStructure(); err != nil {
			return err
		}
		if !opts.Now.IsZero() && !c.ValidAt(opts.Now) {
			return netmap.NewError(netmap.KindInvalidSignature, "NM-CERT-011",
				fmt.Sprintf("certificate %q not valid at %s", c.Subject, opts.Now.UTC().Format(time.RFC3339)))
		}
	}
	if len(opts.LeafRoles) > 0 && !roleIn(path[0].Role, opts.LeafRoles) {
		return netmap.NewError(netmap.KindInvalidSignature, "NM-CERT-010",
			fmt.Sprintf("certificate role %s not permitted for signer", path[0].Role))
	}

	for i := 0; i+1 < len(path); i++ {
		child, parent := path[i], path[i+1]
		if !CanIssue(parent.Role, child.Role) {
			return netmap.NewError(netmap.KindInvalidSignature, "NM-CERT-012",
				fmt.Sprintf("%s %q may not issue %s", parent.Role, parent.Subject, child.Role))
		}
		if err := child.CheckSignatureFrom(parent); err != nil {
			return err
		}
	}

	if trust.Len() == 0 {
		return netmap.NewError(netmap.KindUntrustedRoot, "NM-CERT-020", "no trusted roots configured")
	}
	last := path[len(path)-1]
	if trust.Contains(last) {
		return nil
	}
	root := trust.issuerOf(last)
	if root == nil {
		return netmap.NewError(netmap.KindUntrustedRoot, "NM-CERT-020",
			fmt.Sprintf("certificate path does not chain to a trusted root (issuer %q)", last.Issuer))
	}
	if !CanIssue(root.Role, last.Role) {
		return netmap.NewError(netmap.KindInvalidSignature, "NM-CERT-012",
			fmt.Sprintf("%s %q may not issue %s", root.Role, root.Subject, last.Role))
	}
	return last.CheckSignatureFrom(root)
}

func roleIn(r Role, set []Role) bool {
	for _, s := range set {
		if s == r {
			return true
		}
	}
	return false
}
