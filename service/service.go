// Package service wires the registry, the authority and the builder to the
// publication sinks. Transport adapters talk to a Service and nothing else.
package service

import (
	"errors"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"xdao.co/netmap/authority"
	"xdao.co/netmap/builder"
	"xdao.co/netmap/cert"
	"xdao.co/netmap/digest"
	"xdao.co/netmap/envelope"
	"xdao.co/netmap/metrics"
	"xdao.co/netmap/netmap"
	"xdao.co/netmap/registry"
	"xdao.co/netmap/storage"
)

// Config holds the collaborators of a Service.
type Config struct {
	Registry  *registry.Registry
	Authority *authority.Provider
	// MapSink holds the latest signed network map.
	MapSink storage.Sink
	// ParametersSink holds the signed parameters the latest map refers to.
	ParametersSink storage.Sink
	// Parameters are signed on every build. The zero value selects
	// netmap.DefaultParameters stamped with the service start time.
	Parameters netmap.NetworkParameters

	Logger *zap.Logger
	Clock  clockwork.Clock
}

// Service is safe for concurrent use.
type Service struct {
	reg     *registry.Registry
	auth    *authority.Provider
	mapSink storage.Sink
	parSink storage.Sink
	params  netmap.NetworkParameters
	logger  *zap.Logger
	clock   clockwork.Clock

	// Builds publish under buildMu so the parameters and map sinks always
	// describe the same build.
	buildMu sync.Mutex
}

func New(cfg Config) (*Service, error) {
	if cfg.Registry == nil {
		return nil, errors.New("service: registry is required")
	}
	if cfg.Authority == nil {
		return nil, errors.New("service: authority provider is required")
	}
	if cfg.MapSink == nil || cfg.ParametersSink == nil {
		return nil, errors.New("service: publication sinks are required")
	}
	s := &Service{
		reg:     cfg.Registry,
		auth:    cfg.Authority,
		mapSink: cfg.MapSink,
		parSink: cfg.ParametersSink,
		params:  cfg.Parameters,
		logger:  cfg.Logger,
		clock:   cfg.Clock,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.params.MinimumPlatformVersion == 0 {
		s.params = netmap.DefaultParameters(s.clock.Now())
	}
	if err := s.params.Validate(); err != nil {
		return nil, err
	}
	s.logger = s.logger.Named("service")
	return s, nil
}

// Submit records a signed node info. See registry.Registry.Submit.
func (s *Service) Submit(raw []byte) (digest.SecureHash, error) {
	return s.reg.Submit(raw)
}

// Get returns the signed node info stored under h.
func (s *Service) Get(h digest.SecureHash) ([]byte, error) {
	return s.reg.Get(h)
}

// ListAll returns every registered hash.
func (s *Service) ListAll() ([]digest.SecureHash, error) {
	return s.reg.ListAll()
}

// Trust returns the roots that submissions and published documents chain to.
func (s *Service) Trust() *cert.TrustStore {
	return s.reg.Trust()
}

// Parameters returns the parameters signed by each build.
func (s *Service) Parameters() netmap.NetworkParameters {
	return s.params
}

// Build snapshots the registry, signs a new network map and publishes it,
// replacing the previous one. reason is only logged.
func (s *Service) Build(reason string) (*builder.Result, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	start := s.clock.Now()
	res, err := s.build()
	metrics.ReportBuild(err, s.clock.Since(start), entries(res))
	if err != nil {
		s.logger.Error("network map build failed",
			zap.String("reason", reason),
			zap.String("rule", netmap.RuleID(err)),
			zap.Error(err),
		)
		return nil, err
	}
	s.logger.Info("network map published",
		zap.String("reason", reason),
		zap.Int("entries", len(res.NetworkMap.NodeInfoHashes)),
		zap.Stringer("map_hash", res.MapHash),
		zap.Stringer("parameters_hash", res.ParametersHash),
		zap.Duration("took", s.clock.Since(start)),
	)
	return res, nil
}

// CheckAuthority returns the signing authority if it is available, chains to
// the trusted roots and is currently valid. Any failure is AuthorityUnavailable.
func (s *Service) CheckAuthority() (*authority.Authority, error) {
	auth, err := s.auth.Get()
	if err != nil {
		return nil, err
	}
	if err := auth.Validate(s.reg.Trust(), s.clock.Now()); err != nil {
		return nil, netmap.WrapError(netmap.KindAuthorityUnavailable, "NM-SVC-001",
			"authority does not chain to the trusted roots", err)
	}
	return auth, nil
}

func (s *Service) build() (*builder.Result, error) {
	auth, err := s.CheckAuthority()
	if err != nil {
		return nil, err
	}
	snapshot, err := s.reg.ListAll()
	if err != nil {
		return nil, err
	}
	res, err := builder.Build(snapshot, auth, s.params)
	if err != nil {
		return nil, err
	}
	// Parameters first: a published map must never name parameters that
	// cannot be fetched.
	if err := s.parSink.Put(res.SignedParameters); err != nil {
		return nil, netmap.WrapError(netmap.KindStorage, "NM-SVC-002", "publish network parameters", err)
	}
	if err := s.mapSink.Put(res.SignedNetworkMap); err != nil {
		return nil, netmap.WrapError(netmap.KindStorage, "NM-SVC-003", "publish network map", err)
	}
	return res, nil
}

func entries(res *builder.Result) int {
	if res == nil {
		return 0
	}
	return len(res.NetworkMap.NodeInfoHashes)
}

// NetworkMap returns the latest published signed network map.
func (s *Service) NetworkMap() ([]byte, error) {
	b, err := s.mapSink.Get()
	if storage.IsNotFound(err) {
		return nil, netmap.NewError(netmap.KindNotFound, "NM-SVC-010", "no network map has been published")
	}
	if err != nil {
		return nil, netmap.WrapError(netmap.KindStorage, "NM-SVC-011", "read network map", err)
	}
	return b, nil
}

// NetworkParameters returns the published signed parameters if their hash is h.
func (s *Service) NetworkParameters(h digest.SecureHash) ([]byte, error) {
	b, err := s.parSink.Get()
	if storage.IsNotFound(err) {
		return nil, netmap.NewError(netmap.KindNotFound, "NM-SVC-020", "no network parameters have been published")
	}
	if err != nil {
		return nil, netmap.WrapError(netmap.KindStorage, "NM-SVC-021", "read network parameters", err)
	}
	signed, err := envelope.Parse[netmap.NetworkParameters](b)
	if err != nil {
		return nil, netmap.WrapError(netmap.KindStorage, "NM-SVC-022", "published network parameters are unreadable", err)
	}
	if signed.Hash() != h {
		return nil, netmap.NewError(netmap.KindNotFound, "NM-SVC-020", "network parameters "+h.String()+" not found")
	}
	return b, nil
}
