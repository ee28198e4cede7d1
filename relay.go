package lovewise

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Server is the relay's WebSocket endpoint.
//
// Clients connect with their user identity (and optionally a game session id) as
// query parameters. Every frame exchanged afterwards is a JSON object with a
// mandatory "type" field.
//
// Example usage:
//
//	server := ws.New(cfg, deps, logger)
//	if err := server.Start(ctx); err != nil {
//	    logger.Fatal("could not start relay", zap.Error(err))
//	}
//	defer server.Stop(context.Background())
type Server interface {
	// Start binds the listening address and starts serving connections together with
	// the background monitors (heartbeat, game session sweep).
	//
	// Returns an error if the server is already running or the address cannot be bound.
	Start(ctx context.Context) error

	// Stop closes every client connection, stops the monitors and shuts down the
	// HTTP server.
	Stop(ctx context.Context) error

	// ServeHTTP serves the WebSocket endpoint and the health/stats endpoints without
	// binding a listener. Used by Start and by tests through httptest.
	http.Handler
}

// Conn represents one live client connection.
//
// A Conn belongs to exactly one user id. The relay keeps at most one Conn per user;
// connecting again supersedes the previous one.
type Conn interface {
	// ID returns a unique identifier for this socket, generated at connect time.
	ID() string

	// UserID returns the user identity supplied at connect time.
	UserID() string

	// SessionID returns the game session id supplied at connect time, if any.
	SessionID() string

	// RemoteAddr returns the client's remote network address.
	RemoteAddr() string

	// Context returns the connection's lifecycle context. It is cancelled when the
	// connection closes.
	Context() context.Context

	// Send encodes msg as a JSON frame and queues it for delivery.
	//
	// Returns ErrConnectionClosed if the connection is closed and ErrSendQueueFull
	// when the client cannot keep up.
	Send(ctx context.Context, msg any) error

	// Close closes the connection with a normal closure code.
	Close(ctx context.Context) error

	// CloseWithCode closes the connection with a specific WebSocket close code.
	//
	// Codes used by the relay:
	//   - 1000 normal closure
	//   - 1008 policy violation (bad handshake, rate limit)
	//   - 4000 superseded by a newer connection for the same user
	//   - 4001 heartbeat timeout
	CloseWithCode(ctx context.Context, code int, reason string) error

	// IsAlive returns true while the connection is open.
	IsAlive() bool
}

// Partner is a user that shares an active relationship with another user.
type Partner struct {
	UserID       string `json:"userId"`
	Name         string `json:"name"`
	ProfileImage string `json:"profileImage"`
}

// Relationships resolves the relationship partners of a user. The relay never caches
// the answer, so pairing changes are visible on the next presence event.
type Relationships interface {
	PartnersOf(ctx context.Context, userID string) ([]Partner, error)
}

// Activity records and reads a user's last-active timestamp.
type Activity interface {
	Touch(ctx context.Context, userID string, at time.Time) error
	// LastActive returns false when the user has never been active.
	LastActive(ctx context.Context, userID string) (time.Time, bool, error)
}

// Message is a direct chat message between two partners.
type Message struct {
	ID             string          `json:"id"`
	SenderID       string          `json:"senderId"`
	ReceiverID     string          `json:"receiverId"`
	RelationshipID string          `json:"relationshipId,omitempty"`
	Content        string          `json:"content"`
	Attachments    json.RawMessage `json:"attachments,omitempty"`
	IsRead         bool            `json:"isRead"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// MessageStore is the persistence collaborator for direct messages. Unread counts are
// always recomputed from it rather than tracked by the relay.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg Message) error
	MarkRead(ctx context.Context, messageID, readerID string) error
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// Collaborators groups the external services the relay reads from and writes to.
type Collaborators struct {
	Relationships Relationships
	Activity      Activity
	Messages      MessageStore
}
