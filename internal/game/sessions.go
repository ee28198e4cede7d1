// Package game relays turn-based game traffic between the players of a session.
// Payloads are opaque: the relay stores and forwards them without looking inside.
package game

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Washington-NKE/lovewise-relay/internal/protocol"
	"github.com/Washington-NKE/lovewise-relay/internal/registry"
	"github.com/Washington-NKE/lovewise-relay/internal/telemetry"
)

// Config holds the game session timings.
type Config struct {
	// CleanupDelay is how long an ended session lingers for straggling deliveries.
	CleanupDelay time.Duration
	// IdleTimeout removes sessions that never ended.
	IdleTimeout time.Duration
	// SweepInterval is how often idle sessions are looked for.
	SweepInterval time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		CleanupDelay:  60 * time.Second,
		IdleTimeout:   30 * time.Minute,
		SweepInterval: time.Minute,
	}
}

type session struct {
	players      []string
	state        json.RawMessage
	seq          uint64
	createdAt    time.Time
	lastActivity time.Time
	ended        bool
	cleanup      clockwork.Timer
}

func (s *session) has(playerID string) bool {
	return slices.Contains(s.players, playerID)
}

// Sessions is the in-memory game session registry. Every operation runs under one
// mutex; deliveries are non-blocking enqueues so they are made while holding it,
// which keeps broadcasts of one session in order.
type Sessions struct {
	registry *registry.Registry
	clock    clockwork.Clock
	cfg      Config
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates an empty session registry that delivers through reg.
func New(reg *registry.Registry, clock clockwork.Clock, cfg Config, logger *zap.Logger) *Sessions {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{
		registry: reg,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// Join adds playerID to sessionID, creating the session on first join. The joiner
// receives the current roster and, if a move was made, the latest state. Other
// members are told about the joiner only the first time it joins.
func (g *Sessions) Join(ctx context.Context, sessionID, playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	s, ok := g.sessions[sessionID]
	if !ok {
		s = &session{createdAt: now}
		g.sessions[sessionID] = s
		telemetry.GameSessionsActive.Add(ctx, 1)
		g.logger.Debug("game session created", zap.String("session_id", sessionID), zap.String("user_id", playerID))
	}
	if s.ended {
		g.reactivate(sessionID, s)
	}
	s.lastActivity = now

	joined := !s.has(playerID)
	if joined {
		s.players = append(s.players, playerID)
	}
	count := len(s.players)

	for _, id := range s.players {
		if id != playerID {
			g.registry.SendTo(ctx, playerID, protocol.NewPlayerJoined(id, count))
		}
	}
	if joined {
		g.broadcast(ctx, s, playerID, protocol.NewPlayerJoined(playerID, count))
	}
	if protocol.HasData(s.state) {
		g.registry.SendTo(ctx, playerID, protocol.NewGameState(s.state, s.seq))
	}
}

// Move stores data as the session state and forwards it to the other members. A
// move without data clears the state. Moves to unknown or ended sessions are dropped.
func (g *Sessions) Move(ctx context.Context, sessionID, playerID string, data json.RawMessage) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if !ok || s.ended {
		return false
	}
	s.state = nil
	if protocol.HasData(data) {
		s.state = data
	}
	s.seq++
	s.lastActivity = g.clock.Now()

	g.broadcast(ctx, s, playerID, protocol.NewGameMove(playerID, data, s.seq))
	telemetry.GameMovesRelayed.Add(ctx, 1)
	return true
}

// Chat forwards data to every member, the sender included.
func (g *Sessions) Chat(ctx context.Context, sessionID, playerID string, data json.RawMessage) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if !ok {
		return false
	}
	s.lastActivity = g.clock.Now()
	g.broadcast(ctx, s, "", protocol.NewGameChat(playerID, data))
	return true
}

// End tells every member the game is over and schedules the session for removal
// after CleanupDelay. A Join before then reactivates it.
func (g *Sessions) End(ctx context.Context, sessionID string, data json.RawMessage) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if !ok || s.ended {
		return false
	}
	s.ended = true
	s.lastActivity = g.clock.Now()
	g.broadcast(ctx, s, "", protocol.NewGameEnd(data))

	s.cleanup = g.clock.AfterFunc(g.cfg.CleanupDelay, func() { g.remove(sessionID, s) })
	return true
}

// Sync sends the latest state and sequence number to playerID.
func (g *Sessions) Sync(ctx context.Context, sessionID, playerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if !ok {
		return false
	}
	g.registry.SendTo(ctx, playerID, protocol.NewGameState(s.state, s.seq))
	return true
}

// Players returns the members of sessionID in join order.
func (g *Sessions) Players(sessionID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if !ok {
		return nil
	}
	return slices.Clone(s.players)
}

// Len returns the number of sessions, ended ones awaiting cleanup included.
func (g *Sessions) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

func (g *Sessions) broadcast(ctx context.Context, s *session, except string, msg any) {
	for _, id := range s.players {
		if id != except {
			g.registry.SendTo(ctx, id, msg)
		}
	}
}

func (g *Sessions) reactivate(sessionID string, s *session) {
	if s.cleanup != nil {
		s.cleanup.Stop()
		s.cleanup = nil
	}
	s.ended = false
	s.state = nil
	s.seq = 0
	g.logger.Debug("game session reactivated", zap.String("session_id", sessionID))
}

func (g *Sessions) remove(sessionID string, s *session) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// A rejoin may have reactivated the session, or a new one reused the id.
	if g.sessions[sessionID] != s || !s.ended {
		return
	}
	delete(g.sessions, sessionID)
	telemetry.GameSessionsActive.Add(context.Background(), -1)
	g.logger.Debug("game session removed", zap.String("session_id", sessionID))
}
