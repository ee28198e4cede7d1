package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	lovewise "github.com/Washington-NKE/lovewise-relay"
	"github.com/Washington-NKE/lovewise-relay/internal/protocol"
	"github.com/Washington-NKE/lovewise-relay/internal/telemetry"
)

// Defaults applied by New when the config leaves them unset.
const (
	DefaultPath           = "/ws"
	DefaultMaxMessageSize = 64 * 1024

	userIDParam    = "userId"
	sessionIDParam = "gameSessionId"
)

// CheckOriginFn is a function that validates the origin of a WebSocket connection request.
// It receives the HTTP request and returns true if the origin is allowed, false otherwise.
type CheckOriginFn = func(r *http.Request) bool

// Handler receives the lifecycle and frames of every accepted connection.
//
// All calls for one connection are made from that connection's read goroutine, in
// order: OnConnect, then OnMessage and OnPong as frames arrive, then OnDisconnect.
type Handler interface {
	OnConnect(conn lovewise.Conn)
	OnMessage(conn lovewise.Conn, data []byte)
	OnPong(conn lovewise.Conn)
	OnDisconnect(conn lovewise.Conn)
}

// StatsFn returns the body of the /stats endpoint.
type StatsFn = func() any

// ServerConfig configures a Server.
type ServerConfig struct {
	Addr            string
	Path            string
	MaxMessageSize  int64
	RateLimitConfig *RateLimitConfig
	CheckOrigin     CheckOriginFn
	Handler         Handler
	Stats           StatsFn
	Logger          *zap.Logger
}

// RateLimitConfig defines rate limiting configuration for clients
type RateLimitConfig struct {
	// MessagesPerSecond defines how many messages a client can send per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig returns the default rate limit configuration
// Allows 100 messages per second with burst of 200
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

// Server accepts relay connections and feeds them to a Handler.
type Server struct {
	addr    string
	path    string
	server  *http.Server
	mux     *http.ServeMux
	clients sync.Map // map[string]*Client

	rateLimitConfig *RateLimitConfig
	maxMessageSize  int64

	mu       sync.RWMutex
	running  bool
	draining bool
	conns    sync.WaitGroup // one per handleClient goroutine
	upgrader websocket.Upgrader
	handler  Handler
	stats    StatsFn
	logger   *zap.Logger
}

// New creates a server for cfg. A nil RateLimitConfig means DefaultRateLimitConfig.
func New(cfg *ServerConfig) *Server {
	if cfg.RateLimitConfig == nil {
		cfg.RateLimitConfig = DefaultRateLimitConfig()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Server{
		addr:            cfg.Addr,
		path:            cfg.Path,
		rateLimitConfig: cfg.RateLimitConfig,
		maxMessageSize:  cfg.MaxMessageSize,
		handler:         cfg.Handler,
		stats:           cfg.Stats,
		logger:          cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc(s.path, s.handleWebSocket)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/stats", s.handleStats)
	return s
}

// ServeHTTP serves the WebSocket path, /healthz and /stats.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start starts the WebSocket server
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return lovewise.ErrServerAlreadyRunning
	}
	s.running = true
	s.draining = false
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Check for immediate startup errors with a small timeout
	select {
	case err := <-errChan:
		// Reset running state without calling Stop to avoid deadlock
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	case <-time.After(100 * time.Millisecond):
		s.logger.Info("relay listening", zap.String("addr", s.addr), zap.String("path", s.path))
		return nil
	}
}

// Stop closes every client, waits for their disconnect handling to finish and shuts
// the HTTP server down. Connections served through ServeHTTP alone are drained too.
// Waiting is bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.running = false
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	s.clients.Range(func(_, value any) bool {
		if client, ok := value.(*Client); ok {
			_ = client.CloseWithCode(ctx, websocket.CloseGoingAway, lovewise.ReasonServerShutdown)
		}
		return true
	})

	err := s.wait(ctx)
	if srv != nil {
		err = errors.Join(err, srv.Shutdown(ctx))
	}
	return err
}

// wait blocks until every client goroutine has returned or ctx is done.
func (s *Server) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for clients to disconnect: %w", ctx.Err())
	}
}

// ClientCount returns the number of open sockets, superseded ones still draining
// included.
func (s *Server) ClientCount() int {
	n := 0
	s.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error response.
		s.logger.Debug("upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	query := r.URL.Query()
	userID := query.Get(userIDParam)
	sessionID := query.Get(sessionIDParam)
	if !protocol.ValidID(userID) || (sessionID != "" && !protocol.ValidID(sessionID)) {
		s.reject(conn, r.RemoteAddr)
		return
	}

	// Registration happens under the lock so Stop either sees the client or the
	// client sees the server draining.
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, lovewise.ReasonServerShutdown)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	client := NewClient(conn, userID, sessionID, r.RemoteAddr, s.rateLimitConfig)
	s.clients.Store(client.ID(), client)
	s.conns.Add(1)
	s.mu.Unlock()

	go s.handleClient(client)
}

// reject closes a connection whose handshake parameters are unusable. The upgrade
// happens first so the client sees a close code instead of an HTTP error.
func (s *Server) reject(conn *websocket.Conn, remoteAddr string) {
	telemetry.ConnectionsRejected.Add(context.Background(), 1)
	s.logger.Info("rejecting connection", zap.String("remote_addr", remoteAddr))

	msg := websocket.FormatCloseMessage(lovewise.ClosePolicyViolation, lovewise.ReasonMissingUserID)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}

// handleClient runs the read loop of one client. Frames are handed to the handler
// one at a time, so a client's messages are processed in the order they were sent.
func (s *Server) handleClient(client *Client) {
	logger := s.logger.With(zap.String("user_id", client.UserID()), zap.String("conn_id", client.ID()))

	defer func() {
		if s.handler != nil {
			s.handler.OnDisconnect(client)
		}
		s.clients.Delete(client.ID())
		_ = client.Close(context.Background())
		logger.Debug("client disconnected")
		s.conns.Done()
	}()

	client.conn.SetReadLimit(s.maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))

	client.conn.SetPongHandler(func(string) error {
		_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
		if s.handler != nil {
			s.handler.OnPong(client)
		}
		return nil
	})

	logger.Debug("client connected", zap.String("remote_addr", client.RemoteAddr()))
	if s.handler != nil {
		s.handler.OnConnect(client)
	}

	for {
		select {
		case <-client.Context().Done():
			return
		default:
			_, data, err := client.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
				) {
					logger.Info("unexpected close", zap.Error(err))
				}
				return
			}

			_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))

			if !client.CheckRateLimit() {
				logger.Warn("rate limit exceeded", zap.String("remote_addr", client.RemoteAddr()))
				_ = client.CloseWithCode(context.Background(), lovewise.ClosePolicyViolation, lovewise.ReasonRateLimited)
				return
			}

			if s.handler != nil {
				s.handler.OnMessage(client, data)
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, s.stats())
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
