// Package heartbeat detects half-open connections that never signal close.
package heartbeat

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	lovewise "github.com/Washington-NKE/lovewise-relay"
	"github.com/Washington-NKE/lovewise-relay/internal/protocol"
	"github.com/Washington-NKE/lovewise-relay/internal/registry"
	"github.com/Washington-NKE/lovewise-relay/internal/telemetry"
)

// Config controls the monitor cadence.
type Config struct {
	// Interval between monitor passes. Every pass pings each live connection.
	Interval time.Duration
	// Timeout after the last heartbeat response at which a connection is terminated.
	Timeout time.Duration
}

// DefaultConfig pings every 15 seconds and evicts after 30 seconds of silence,
// i.e. roughly two missed cycles.
func DefaultConfig() Config {
	return Config{
		Interval: 15 * time.Second,
		Timeout:  30 * time.Second,
	}
}

// EvictFn runs the offline path for a connection the monitor terminated. It is called
// only after the connection has been released from the registry.
type EvictFn func(ctx context.Context, conn lovewise.Conn)

// Monitor pings registered connections and evicts the ones that stop answering.
type Monitor struct {
	registry *registry.Registry
	clock    clockwork.Clock
	cfg      Config
	onEvict  EvictFn
	logger   *zap.Logger
}

// New creates a monitor over reg. onEvict may be nil.
func New(reg *registry.Registry, clock clockwork.Clock, cfg Config, onEvict EvictFn, logger *zap.Logger) *Monitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		registry: reg,
		clock:    clock,
		cfg:      cfg,
		onEvict:  onEvict,
		logger:   logger,
	}
}

// Run performs a pass every Interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.Check(ctx)
		}
	}
}

// Check runs a single pass and returns the number of evicted connections.
func (m *Monitor) Check(ctx context.Context) int {
	now := m.clock.Now()
	evicted := 0

	for _, rec := range m.registry.Snapshot() {
		if now.Sub(rec.LastHeartbeat) > m.cfg.Timeout {
			if m.evict(ctx, rec) {
				evicted++
			}
			continue
		}

		if err := rec.Conn.Send(ctx, protocol.NewPing(now)); err != nil {
			m.logger.Debug("ping failed", zap.String("user_id", rec.UserID), zap.Error(err))
		}
	}

	return evicted
}

func (m *Monitor) evict(ctx context.Context, rec registry.Record) bool {
	m.logger.Info("heartbeat timeout, terminating connection",
		zap.String("user_id", rec.UserID),
		zap.String("conn_id", rec.Conn.ID()),
		zap.Time("last_heartbeat", rec.LastHeartbeat),
	)

	if err := rec.Conn.CloseWithCode(ctx, lovewise.CloseHeartbeatTimeout, lovewise.ReasonHeartbeatTimeout); err != nil {
		m.logger.Debug("closing stale connection", zap.String("user_id", rec.UserID), zap.Error(err))
	}

	// The socket's own teardown may have released it first; only one side runs the
	// offline path.
	if !m.registry.Release(rec.Conn) {
		return false
	}

	telemetry.HeartbeatEvictions.Add(ctx, 1)
	if m.onEvict != nil {
		m.onEvict(ctx, rec.Conn)
	}
	return true
}
