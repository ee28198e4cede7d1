// Package conntest provides an in-memory lovewise.Conn for tests.
package conntest

import (
	"context"
	"sync"

	"github.com/google/uuid"

	lovewise "github.com/Washington-NKE/lovewise-relay"
)

// Conn records every message sent to it instead of writing to a socket.
type Conn struct {
	id        string
	userID    string
	sessionID string
	ctx       context.Context
	cancel    context.CancelFunc

	mu          sync.Mutex
	sent        []any
	closed      bool
	closeCode   int
	closeReason string
	sendErr     error
}

// New returns an open connection for userID.
func New(userID string) *Conn {
	return NewWithSession(userID, "")
}

// NewWithSession returns an open connection for userID that joined with a game
// session id.
func NewWithSession(userID, sessionID string) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		id:        uuid.New().String(),
		userID:    userID,
		sessionID: sessionID,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ID, UserID, SessionID, RemoteAddr and Context implement lovewise.Conn.
func (c *Conn) ID() string { return c.id }
func (c *Conn) UserID() string { return c.userID }
func (c *Conn) SessionID() string { return c.sessionID }
func (c *Conn) RemoteAddr() string { return "127.0.0.1:0" }
func (c *Conn) Context() context.Context { return c.ctx }

// Close records a normal closure.
func (c *Conn) Close(ctx context.Context) error {
	return c.CloseWithCode(ctx, lovewise.CloseNormal, "")
}

// Send records msg, or fails with the error set by FailSends.
func (c *Conn) Send(_ context.Context, msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return lovewise.ErrConnectionClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

// CloseWithCode records code and reason and cancels the context.
func (c *Conn) CloseWithCode(_ context.Context, code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	c.cancel()
	return nil
}

// IsAlive reports whether the connection has not been closed.
func (c *Conn) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// FailSends makes every following Send return err.
func (c *Conn) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Sent returns a copy of every message sent so far.
func (c *Conn) Sent() []any {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]any, len(c.sent))
	copy(out, c.sent)
	return out
}

// Reset forgets the messages sent so far.
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

// Closed returns the close code and reason, and whether the connection was closed.
func (c *Conn) Closed() (int, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeReason, c.closed
}

// Messages returns the sent messages of type T, in send order.
func Messages[T any](c *Conn) []T {
	var out []T
	for _, m := range c.Sent() {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
