// Package registry maps user ids to their single live connection.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	lovewise "github.com/Washington-NKE/lovewise-relay"
	"github.com/Washington-NKE/lovewise-relay/internal/telemetry"
)

type entry struct {
	conn     lovewise.Conn
	lastBeat time.Time
}

// Record is a point-in-time view of a registered connection.
type Record struct {
	UserID        string
	Conn          lovewise.Conn
	LastHeartbeat time.Time
}

// Registry holds at most one connection per user id. All mutations are serialized
// under one mutex so concurrent connects for the same user are linearized.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	clock   clockwork.Clock
	logger  *zap.Logger
}

// New creates an empty registry. Heartbeat timestamps are taken from clock.
func New(clock clockwork.Clock, logger *zap.Logger) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*entry),
		clock:   clock,
		logger:  logger,
	}
}

// Register stores conn as the live connection of userID. A previous connection for
// the same user is closed with CloseSuperseded and returned.
func (r *Registry) Register(userID string, conn lovewise.Conn) lovewise.Conn {
	r.mu.Lock()
	prev, existed := r.entries[userID]
	r.entries[userID] = &entry{conn: conn, lastBeat: r.clock.Now()}
	r.mu.Unlock()

	if !existed {
		telemetry.ConnectionsActive.Add(context.Background(), 1)
		return nil
	}
	if prev.conn.ID() == conn.ID() {
		return nil
	}

	r.logger.Info("replacing existing connection",
		zap.String("user_id", userID),
		zap.String("old_conn_id", prev.conn.ID()),
		zap.String("conn_id", conn.ID()),
	)
	telemetry.ConnectionsSuperseded.Add(context.Background(), 1)

	if err := prev.conn.CloseWithCode(context.Background(), lovewise.CloseSuperseded, lovewise.ReasonSuperseded); err != nil {
		r.logger.Debug("closing superseded connection", zap.String("user_id", userID), zap.Error(err))
	}
	return prev.conn
}

// Unregister removes the entry for userID if present.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	_, ok := r.entries[userID]
	delete(r.entries, userID)
	r.mu.Unlock()

	if ok {
		telemetry.ConnectionsActive.Add(context.Background(), -1)
	}
}

// Release removes conn only if it is still the registered connection of its user.
// It reports whether an entry was removed, so exactly one caller runs the offline path.
func (r *Registry) Release(conn lovewise.Conn) bool {
	r.mu.Lock()
	e, ok := r.entries[conn.UserID()]
	if !ok || e.conn.ID() != conn.ID() {
		r.mu.Unlock()
		return false
	}
	delete(r.entries, conn.UserID())
	r.mu.Unlock()

	telemetry.ConnectionsActive.Add(context.Background(), -1)
	return true
}

// Get returns the live connection for userID.
func (r *Registry) Get(userID string) (lovewise.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Online reports whether userID has a registered connection.
func (r *Registry) Online(userID string) bool {
	_, ok := r.Get(userID)
	return ok
}

// IDs returns the registered user ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Touch records a heartbeat response for conn. Heartbeats from a superseded
// connection are ignored.
func (r *Registry) Touch(conn lovewise.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[conn.UserID()]; ok && e.conn.ID() == conn.ID() {
		e.lastBeat = r.clock.Now()
	}
}

// LastHeartbeat returns the last heartbeat response time of userID.
func (r *Registry) LastHeartbeat(userID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[userID]
	if !ok {
		return time.Time{}, false
	}
	return e.lastBeat, true
}

// Snapshot returns every registered connection. The lock is released before the
// caller iterates, so callers may send or close freely.
func (r *Registry) Snapshot() []Record {
	r.mu.RLock()
	records := make([]Record, 0, len(r.entries))
	for id, e := range r.entries {
		records = append(records, Record{UserID: id, Conn: e.conn, LastHeartbeat: e.lastBeat})
	}
	r.mu.RUnlock()
	return records
}

// SendTo delivers msg to userID's connection. Sending to a user that is not
// registered is not an error; it reports false.
func (r *Registry) SendTo(ctx context.Context, userID string, msg any) bool {
	conn, ok := r.Get(userID)
	if !ok {
		return false
	}
	if err := conn.Send(ctx, msg); err != nil {
		r.logger.Debug("delivery failed",
			zap.String("user_id", userID),
			zap.String("conn_id", conn.ID()),
			zap.Error(err),
		)
		return false
	}
	return true
}
