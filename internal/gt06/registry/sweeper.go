package registry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/gt06-gateway/internal/metrics"
)

// ConnectionCloser lets the sweeper ask the owning connection to close
// once its session has been evicted for inactivity. Implemented by the
// TCP connection manager (internal/tcpserver); the registry never
// touches a socket directly.
type ConnectionCloser interface {
	CloseConnection(connID string)
}

// Sweeper periodically evicts idle sessions (spec §4.4 "TTL sweeper").
// Safe to run concurrently with normal registry operations — Evict
// takes the same per-IMEI discipline as every other mutation.
type Sweeper struct {
	registry *Registry
	closer   ConnectionCloser
	idle     time.Duration
	interval time.Duration
	log      *zap.Logger

	metrics *metrics.AppMetrics
}

// NewSweeper constructs a sweeper. closer may be nil if connections
// are expected to notice the registry eviction on their own idle
// timer instead.
func NewSweeper(registry *Registry, closer ConnectionCloser, idle, interval time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{registry: registry, closer: closer, idle: idle, interval: interval, log: log}
}

// SetMetrics installs the gateway's Prometheus instrumentation. Nil is
// safe and leaves the eviction counter update a no-op.
func (s *Sweeper) SetMetrics(m *metrics.AppMetrics) { s.metrics = m }

// Run blocks, sweeping on Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	idle := s.registry.FindIdle(s.idle)
	for _, sess := range idle {
		connID := sess.ConnectionID
		s.registry.Evict(ctx, sess.ID)
		s.log.Debug("evicted idle session", zap.String("session_id", sess.ID), zap.String("imei", sess.IMEI))
		if s.metrics != nil {
			s.metrics.SessionsEvicted.Inc()
		}
		if connID != "" && s.closer != nil {
			s.closer.CloseConnection(connID)
		}
	}
}
