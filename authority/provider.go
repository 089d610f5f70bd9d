package authority

import (
	"sync"

	"go.uber.org/zap"

	"xdao.co/netmap/netmap"
)

// Source produces the authority. A Provider calls it at most once.
type Source func() (*Authority, error)

// FromRoot issues a fresh network-map certificate under root.
func FromRoot(root *Root, opts IssueOptions) Source {
	return func() (*Authority, error) {
		return IssueNetworkMapCA(root, opts)
	}
}

// FromFiles loads a provisioned authority.
func FromFiles(keyFile, certFile, hashAlg string) Source {
	return func() (*Authority, error) {
		return LoadAuthority(keyFile, certFile, hashAlg)
	}
}

// Provider lazily initializes the authority on first use and hands out the
// same value for the rest of its lifetime. A failed initialization is not
// retried.
type Provider struct {
	source Source
	logger *zap.Logger

	mu   sync.Mutex
	done bool
	auth *Authority
	err  error
}

// ProviderOpt configures a Provider.
type ProviderOpt func(*Provider)

// WithLogger sets the logger used to report initialization.
func WithLogger(l *zap.Logger) ProviderOpt {
	return func(p *Provider) {
		p.logger = l
	}
}

func NewProvider(source Source, opts ...ProviderOpt) *Provider {
	p := &Provider{source: source, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Static returns a provider that always yields a.
func Static(a *Authority) *Provider {
	return &Provider{logger: zap.NewNop(), done: true, auth: a}
}

// Get returns the authority, initializing it if needed. Errors are of kind
// AuthorityUnavailable.
func (p *Provider) Get() (*Authority, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.done {
		p.done = true
		p.auth, p.err = p.init()
	}
	return p.auth, p.err
}

func (p *Provider) init() (*Authority, error) {
	if p.source == nil {
		return nil, netmap.NewError(netmap.KindAuthorityUnavailable, "NM-AUTH-001", "no authority source configured")
	}
	a, err := p.source()
	if err == nil && a == nil {
		err = netmap.NewError(netmap.KindAuthorityUnavailable, "NM-AUTH-004", "authority source returned nothing")
	}
	if err != nil {
		if !netmap.IsKind(err, netmap.KindAuthorityUnavailable) {
			err = netmap.WrapError(netmap.KindAuthorityUnavailable, "NM-AUTH-007", "initialize authority", err)
		}
		p.logger.Error("authority unavailable", zap.Error(err))
		return nil, err
	}
	p.logger.Info("authority ready",
		zap.String("subject", a.Cert.Subject),
		zap.String("scheme", string(a.Key.Scheme)),
		zap.Stringer("fingerprint", a.Cert.Fingerprint()),
		zap.Time("not_after", timeOf(a.Cert.NotAfter)),
	)
	return a, nil
}
