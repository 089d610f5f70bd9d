// Package registry is the single authoritative store of verified node info
// submissions, keyed by the hash of the signed node info payload.
package registry

import (
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"xdao.co/netmap/cert"
	"xdao.co/netmap/compliance"
	"xdao.co/netmap/digest"
	"xdao.co/netmap/envelope"
	"xdao.co/netmap/metrics"
	"xdao.co/netmap/netmap"
	"xdao.co/netmap/storage"
)

// DefaultCacheSize is the number of verified envelopes kept in memory.
const DefaultCacheSize = 1024

const lockStripes = 64

// Registry verifies node info submissions and records each under its hash.
// It is safe for concurrent use.
type Registry struct {
	store  storage.Store
	trust  *cert.TrustStore
	policy compliance.ComplianceMode
	clock  clockwork.Clock
	logger *zap.Logger

	cacheSize int
	cache     *lru.Cache[digest.SecureHash, []byte]

	// Submissions of the same hash serialize on one stripe so the duplicate
	// check and the write are atomic with respect to each other.
	locks [lockStripes]sync.Mutex
}

type Opt func(*Registry)

func WithLogger(l *zap.Logger) Opt {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithPolicy selects how differing envelopes for a stored hash are handled.
func WithPolicy(p compliance.ComplianceMode) Opt {
	return func(r *Registry) {
		r.policy = p
	}
}

// WithClock sets the clock used for certificate validity checks.
func WithClock(c clockwork.Clock) Opt {
	return func(r *Registry) {
		r.clock = c
	}
}

// WithCacheSize sets the verified-read cache capacity.
func WithCacheSize(n int) Opt {
	return func(r *Registry) {
		r.cacheSize = n
	}
}

func New(store storage.Store, trust *cert.TrustStore, opts ...Opt) (*Registry, error) {
	if store == nil {
		return nil, errors.New("registry: store is required")
	}
	if trust.Len() == 0 {
		return nil, errors.New("registry: at least one trusted root is required")
	}
	r := &Registry{
		store:     store,
		trust:     trust,
		policy:    compliance.Permissive,
		clock:     clockwork.NewRealClock(),
		logger:    zap.NewNop(),
		cacheSize: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cacheSize > 0 {
		c, err := lru.New[digest.SecureHash, []byte](r.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("registry: cache: %w", err)
		}
		r.cache = c
	}
	r.logger = r.logger.Named("registry")
	return r, nil
}

// Trust returns the roots submissions must chain to.
func (r *Registry) Trust() *cert.TrustStore {
	return r.trust
}

// Submit verifies a signed node info and records it. It returns the hash of
// the node info payload, which is the registry key.
//
// Errors are *netmap.Error values. Rejected submissions never touch the store.
func (r *Registry) Submit(raw []byte) (digest.SecureHash, error) {
	h, result, err := r.submit(raw)
	metrics.ReportSubmission(result)
	if err != nil {
		r.logger.Info("submission rejected",
			zap.String("reason", string(netmap.KindOf(err))),
			zap.String("rule", netmap.RuleID(err)),
			zap.Error(err),
		)
		return digest.Zero, err
	}
	r.logger.Debug("submission recorded", zap.Stringer("hash", h), zap.String("result", result))
	return h, nil
}

func (r *Registry) submit(raw []byte) (digest.SecureHash, string, error) {
	s, err := envelope.Parse[netmap.NodeInfo](raw)
	if err != nil {
		return digest.Zero, resultFor(err), err
	}
	info, err := s.Unwrap(r.trust, cert.VerifyOptions{
		LeafRoles: []cert.Role{cert.RoleNodeIdentity},
		Now:       r.clock.Now(),
	})
	if err != nil {
		return digest.Zero, resultFor(err), err
	}
	if signer := s.Signer(); info.LegalName != signer.Subject {
		err := netmap.NewError(netmap.KindInvalidSignature, "NM-REG-003",
			fmt.Sprintf("legal name %q does not match signing identity %q", info.LegalName, signer.Subject))
		return digest.Zero, metrics.ResultSignature, err
	}

	h := s.Hash()
	mu := &r.locks[h[0]%lockStripes]
	mu.Lock()
	defer mu.Unlock()

	existing, err := r.store.Get(h)
	switch {
	case storage.IsNotFound(err):
		existing = nil
	case err != nil:
		r.logger.Error("store read failed", zap.Stringer("hash", h), zap.Error(err))
		return digest.Zero, metrics.ResultError, netmap.WrapError(netmap.KindStorage, "NM-REG-010", "read stored node info", err)
	}

	result := metrics.ResultAccepted
	switch r.policy.Decide(existing, raw) {
	case compliance.Skip:
		return h, metrics.ResultDuplicate, nil
	case compliance.Reject:
		return digest.Zero, metrics.ResultConflict, netmap.NewError(netmap.KindConflict, "NM-REG-004",
			fmt.Sprintf("a different envelope is already registered for %s", h))
	case compliance.Replace:
		result = metrics.ResultReplaced
		r.logger.Info("replacing differently signed envelope", zap.Stringer("hash", h), zap.String("legal_name", info.LegalName))
	}
	if err := r.store.Put(h, raw); err != nil {
		r.logger.Error("store write failed", zap.Stringer("hash", h), zap.Error(err))
		return digest.Zero, metrics.ResultError, netmap.WrapError(netmap.KindStorage, "NM-REG-011", "write node info", err)
	}
	if r.cache != nil {
		r.cache.Add(h, append([]byte(nil), raw...))
	}
	return h, result, nil
}

func resultFor(err error) string {
	switch netmap.KindOf(err) {
	case netmap.KindMalformed:
		return metrics.ResultMalformed
	case netmap.KindInvalidSignature:
		return metrics.ResultSignature
	case netmap.KindUntrustedRoot:
		return metrics.ResultUntrusted
	default:
		return metrics.ResultError
	}
}

// Get returns the signed node info bytes recorded under h.
//
// Bytes read from the store are checked to hash to h before they are
// returned; a mismatch is reported as a storage error.
func (r *Registry) Get(h digest.SecureHash) ([]byte, error) {
	if r.cache != nil {
		if b, ok := r.cache.Get(h); ok {
			metrics.ReportLookup(metrics.LookupCacheHit)
			return append([]byte(nil), b...), nil
		}
	}
	b, err := r.store.Get(h)
	if err != nil {
		if storage.IsNotFound(err) || errors.Is(err, storage.ErrInvalidKey) {
			metrics.ReportLookup(metrics.LookupNotFound)
			return nil, netmap.WrapError(netmap.KindNotFound, "NM-REG-020", fmt.Sprintf("no node info registered for %s", h), err)
		}
		metrics.ReportLookup(metrics.LookupError)
		return nil, netmap.WrapError(netmap.KindStorage, "NM-REG-010", "read stored node info", err)
	}
	s, err := envelope.Parse[netmap.NodeInfo](b)
	if err != nil || s.Hash() != h {
		metrics.ReportLookup(metrics.LookupError)
		r.logger.Error("stored node info failed integrity check", zap.Stringer("hash", h))
		return nil, netmap.WrapError(netmap.KindStorage, "NM-REG-021", fmt.Sprintf("stored bytes for %s are corrupt", h), storage.ErrHashMismatch)
	}
	metrics.ReportLookup(metrics.LookupStore)
	if r.cache != nil {
		r.cache.Add(h, append([]byte(nil), b...))
	}
	return b, nil
}

// ListAll returns every registered hash in no particular order.
func (r *Registry) ListAll() ([]digest.SecureHash, error) {
	keys, err := r.store.Keys()
	if err != nil {
		r.logger.Error("listing store failed", zap.Error(err))
		return nil, netmap.WrapError(netmap.KindStorage, "NM-REG-012", "list node infos", err)
	}
	return keys, nil
}
