// Package ws assembles a running relay from configuration and collaborators.
package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	lovewise "github.com/Washington-NKE/lovewise-relay"
	"github.com/Washington-NKE/lovewise-relay/internal/config"
	"github.com/Washington-NKE/lovewise-relay/internal/game"
	"github.com/Washington-NKE/lovewise-relay/internal/heartbeat"
	"github.com/Washington-NKE/lovewise-relay/internal/messaging"
	"github.com/Washington-NKE/lovewise-relay/internal/presence"
	"github.com/Washington-NKE/lovewise-relay/internal/registry"
	"github.com/Washington-NKE/lovewise-relay/internal/relay"
	"github.com/Washington-NKE/lovewise-relay/internal/websocket"
)

// Option customizes New.
type Option func(*options)

type options struct {
	clock clockwork.Clock
}

// WithClock replaces the wall clock driving heartbeats, typing expiry and game
// cleanup.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// Relay is the assembled relay. It implements lovewise.Server.
type Relay struct {
	server  *websocket.Server
	hub     *relay.Hub
	monitor *heartbeat.Monitor
	games   *game.Sessions
	logger  *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ lovewise.Server = (*Relay)(nil)

// New wires the relay components for cfg. Collaborators may be partially nil; the
// corresponding features then degrade to relay-only behavior.
//
// Example:
//
//	relay := ws.New(cfg, collaborators, logger)
//	if err := relay.Start(ctx); err != nil {
//	    logger.Fatal("could not start relay", zap.Error(err))
//	}
func New(cfg config.Config, collab lovewise.Collaborators, logger *zap.Logger, opts ...Option) *Relay {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := registry.New(o.clock, logger.Named("registry"))

	hub := relay.New(relay.Components{
		Registry: reg,
		Presence: presence.New(reg, collab.Relationships, collab.Activity, o.clock, presence.Config{
			Window:      cfg.PresenceWindow,
			CallTimeout: cfg.CollaboratorTimeout,
		}, logger.Named("presence")),
		Router: messaging.NewRouter(reg, collab.Messages, o.clock, cfg.CollaboratorTimeout, logger.Named("messaging")),
		Typing: messaging.NewTyping(reg, o.clock, cfg.TypingTimeout),
		Games: game.New(reg, o.clock, game.Config{
			CleanupDelay:  cfg.GameCleanupDelay,
			IdleTimeout:   cfg.GameIdleTimeout,
			SweepInterval: cfg.GameSweepInterval,
		}, logger.Named("game")),
	}, logger.Named("hub"))

	monitor := heartbeat.New(reg, o.clock, heartbeat.Config{
		Interval: cfg.HeartbeatInterval,
		Timeout:  cfg.HeartbeatTimeout,
	}, hub.Offline, logger.Named("heartbeat"))

	rl := websocket.NoRateLimit()
	if cfg.RateLimitEnabled {
		rl = &websocket.RateLimitConfig{
			MessagesPerSecond: rate.Limit(cfg.RateLimitPerSecond),
			Burst:             cfg.RateLimitBurst,
			Enabled:           true,
		}
	}

	server := websocket.New(&websocket.ServerConfig{
		Addr:            cfg.Addr,
		Path:            cfg.WSPath,
		MaxMessageSize:  cfg.MaxMessageSize,
		RateLimitConfig: rl,
		CheckOrigin:     cfg.CheckOrigin(),
		Handler:         hub,
		Stats:           func() any { return hub.Stats() },
		Logger:          logger.Named("websocket"),
	})

	return &Relay{
		server:  server,
		hub:     hub,
		monitor: monitor,
		games:   hub.Games,
		logger:  logger,
	}
}

// Start runs the heartbeat monitor and the game session sweeper, then binds the
// listener.
func (r *Relay) Start(ctx context.Context) error {
	started := r.startBackground()

	if err := r.server.Start(ctx); err != nil {
		if started {
			r.stopBackground()
		}
		return err
	}
	return nil
}

// Stop closes every connection and waits, bounded by ctx, until each one has run
// its offline path. It then stops the background loops and shuts the listener down.
func (r *Relay) Stop(ctx context.Context) error {
	err := r.server.Stop(ctx)
	r.stopBackground()
	return err
}

// ServeHTTP serves the WebSocket endpoint and the health and stats endpoints.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.server.ServeHTTP(w, req)
}

// Stats reports what the /stats endpoint serves.
func (r *Relay) Stats() relay.Stats {
	return r.hub.Stats()
}

func (r *Relay) startBackground() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.monitor.Run(ctx)
	}()
	go func() {
		defer r.wg.Done()
		r.games.Run(ctx)
	}()
	return true
}

func (r *Relay) stopBackground() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		r.wg.Wait()
	}
}
