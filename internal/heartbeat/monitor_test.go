package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	lovewise "github.com/Washington-NKE/lovewise-relay"
	"github.com/Washington-NKE/lovewise-relay/internal/conntest"
	"github.com/Washington-NKE/lovewise-relay/internal/protocol"
	"github.com/Washington-NKE/lovewise-relay/internal/registry"
)

type evictions struct {
	mu    sync.Mutex
	users []string
}

func (e *evictions) record(_ context.Context, conn lovewise.Conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.users = append(e.users, conn.UserID())
}

func (e *evictions) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.users...)
}

func newTestMonitor(t *testing.T) (*Monitor, *registry.Registry, *clockwork.FakeClock, *evictions) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	logger := zaptest.NewLogger(t)
	reg := registry.New(clock, logger)
	ev := &evictions{}
	return New(reg, clock, DefaultConfig(), ev.record, logger), reg, clock, ev
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, 15*time.Second, cfg.Interval)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestMonitor_PingsLiveConnections(t *testing.T) {
	t.Parallel()
	m, reg, clock, ev := newTestMonitor(t)

	conn := conntest.New("alice")
	reg.Register("alice", conn)

	clock.Advance(15 * time.Second)
	assert.Equal(t, 0, m.Check(context.Background()))

	pings := conntest.Messages[protocol.Ping](conn)
	require.Len(t, pings, 1)
	assert.Equal(t, lovewise.TypePing, pings[0].Type)
	assert.Equal(t, clock.Now().UnixMilli(), pings[0].Timestamp)
	assert.Empty(t, ev.list())
	assert.True(t, conn.IsAlive())
}

// TestMonitor_EvictsSilentConnection tests that a connection that never answers is
// terminated on the first pass after the timeout is crossed
func TestMonitor_EvictsSilentConnection(t *testing.T) {
	t.Parallel()
	m, reg, clock, ev := newTestMonitor(t)

	conn := conntest.New("alice")
	reg.Register("alice", conn)

	clock.Advance(15 * time.Second)
	m.Check(context.Background())
	clock.Advance(15 * time.Second)
	assert.Equal(t, 0, m.Check(context.Background()), "exactly at the threshold the connection survives")

	clock.Advance(15 * time.Second)
	assert.Equal(t, 1, m.Check(context.Background()))

	code, reason, closed := conn.Closed()
	assert.True(t, closed)
	assert.Equal(t, lovewise.CloseHeartbeatTimeout, code)
	assert.Equal(t, lovewise.ReasonHeartbeatTimeout, reason)
	assert.False(t, reg.Online("alice"))
	assert.Equal(t, []string{"alice"}, ev.list())
}

func TestMonitor_PongKeepsConnectionAlive(t *testing.T) {
	t.Parallel()
	m, reg, clock, ev := newTestMonitor(t)

	conn := conntest.New("alice")
	reg.Register("alice", conn)

	for i := 0; i < 10; i++ {
		clock.Advance(15 * time.Second)
		m.Check(context.Background())
		reg.Touch(conn)
	}

	assert.True(t, conn.IsAlive())
	assert.True(t, reg.Online("alice"))
	assert.Empty(t, ev.list())
	assert.Len(t, conntest.Messages[protocol.Ping](conn), 10)
}

func TestMonitor_OnlyStaleConnectionsEvicted(t *testing.T) {
	t.Parallel()
	m, reg, clock, ev := newTestMonitor(t)

	alice, bob := conntest.New("alice"), conntest.New("bob")
	reg.Register("alice", alice)
	reg.Register("bob", bob)

	clock.Advance(31 * time.Second)
	reg.Touch(bob)

	assert.Equal(t, 1, m.Check(context.Background()))
	assert.Equal(t, []string{"alice"}, ev.list())
	assert.True(t, bob.IsAlive())
	assert.True(t, reg.Online("bob"))
}

func TestMonitor_ReleasedConnectionNotEvictedTwice(t *testing.T) {
	t.Parallel()
	m, reg, clock, ev := newTestMonitor(t)

	conn := conntest.New("alice")
	reg.Register("alice", conn)
	clock.Advance(time.Minute)

	snapshot := reg.Snapshot()
	require.Len(t, snapshot, 1)

	// The socket closed on its own between the snapshot and the eviction.
	require.True(t, reg.Release(conn))
	assert.False(t, m.evict(context.Background(), snapshot[0]))
	assert.Empty(t, ev.list())
}

func TestMonitor_RunTicksOnInterval(t *testing.T) {
	t.Parallel()
	m, reg, clock, ev := newTestMonitor(t)

	conn := conntest.New("alice")
	reg.Register("alice", conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	for i := 0; i < 3; i++ {
		clock.Advance(15 * time.Second)
	}

	assert.Eventually(t, func() bool {
		return len(ev.list()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, conn.IsAlive())

	cancel()
	<-done
}
