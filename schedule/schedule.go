// Package schedule triggers network map builds on a fixed interval.
package schedule

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"xdao.co/netmap/builder"
)

// DefaultInterval matches the cadence of the hosted network map.
const DefaultInterval = 59 * time.Minute

// Builder is the operation the scheduler triggers.
type Builder interface {
	Build(reason string) (*builder.Result, error)
}

type Opt func(*Scheduler)

func WithLogger(l *zap.Logger) Opt {
	return func(s *Scheduler) {
		s.logger = l
	}
}

func WithClock(c clockwork.Clock) Opt {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithInterval sets the pause between builds. Non-positive values keep the default.
func WithInterval(d time.Duration) Opt {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithInitialBuild builds once as soon as Run starts.
func WithInitialBuild() Opt {
	return func(s *Scheduler) {
		s.initial = true
	}
}

// Scheduler calls Build every interval until its context is cancelled.
// Failed builds are logged and retried on the next tick.
type Scheduler struct {
	b        Builder
	logger   *zap.Logger
	clock    clockwork.Clock
	interval time.Duration
	initial  bool
}

func New(b Builder, opts ...Opt) *Scheduler {
	s := &Scheduler{
		b:        b,
		logger:   zap.NewNop(),
		clock:    clockwork.NewRealClock(),
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("schedule")
	return s
}

// Run blocks until ctx is done. It always returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.initial {
		s.build("startup")
	}
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("build schedule started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("build schedule stopped")
			return nil
		case <-ticker.Chan():
			s.build("timer")
		}
	}
}

func (s *Scheduler) build(reason string) {
	if _, err := s.b.Build(reason); err != nil {
		// The service has already logged the failure.
		s.logger.Debug("scheduled build failed", zap.String("reason", reason), zap.Error(err))
	}
}
