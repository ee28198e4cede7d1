package game

import (
	"context"

	"go.uber.org/zap"

	"github.com/Washington-NKE/lovewise-relay/internal/telemetry"
)

// Sweep removes sessions with no activity for longer than IdleTimeout. Ended
// sessions are left to their cleanup timer.
func (g *Sessions) Sweep(ctx context.Context) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	removed := 0
	for id, s := range g.sessions {
		if s.ended || now.Sub(s.lastActivity) <= g.cfg.IdleTimeout {
			continue
		}
		delete(g.sessions, id)
		removed++
		g.logger.Info("idle game session removed",
			zap.String("session_id", id),
			zap.Duration("age", now.Sub(s.createdAt)),
		)
	}
	if removed > 0 {
		telemetry.GameSessionsActive.Add(ctx, -int64(removed))
	}
	return removed
}

// Run sweeps every SweepInterval until ctx is done.
func (g *Sessions) Run(ctx context.Context) {
	if g.cfg.SweepInterval <= 0 || g.cfg.IdleTimeout <= 0 {
		return
	}

	ticker := g.clock.NewTicker(g.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			g.Sweep(ctx)
		}
	}
}
