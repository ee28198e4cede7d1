package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	lovewise "github.com/Washington-NKE/lovewise-relay"
	"github.com/Washington-NKE/lovewise-relay/internal/conntest"
	"github.com/Washington-NKE/lovewise-relay/internal/protocol"
	"github.com/Washington-NKE/lovewise-relay/internal/registry"
	"github.com/Washington-NKE/lovewise-relay/internal/store"
)

type fixture struct {
	publisher *Publisher
	registry  *registry.Registry
	store     *store.Memory
	clock     *clockwork.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 14, 19, 0, 0, 0, time.UTC))
	logger := zaptest.NewLogger(t)
	reg := registry.New(clock, logger)
	mem := store.NewMemory()
	mem.AddUser("alice", "Alice", "alice.png")
	mem.AddUser("bob", "Bob", "bob.png")
	mem.Pair("alice", "bob")

	return &fixture{
		publisher: New(reg, mem, mem, clock, DefaultConfig(), logger),
		registry:  reg,
		store:     mem,
		clock:     clock,
	}
}

func (f *fixture) connect(userID string) *conntest.Conn {
	conn := conntest.New(userID)
	f.registry.Register(userID, conn)
	return conn
}

func TestPublisher_OnConnectNotifiesOnlinePartner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	bob := f.connect("bob")
	alice := f.connect("alice")
	f.publisher.OnConnect(ctx, "alice")

	changes := conntest.Messages[protocol.PresenceChange](bob)
	require.Len(t, changes, 1, "exactly one presence_change per connect")
	assert.Equal(t, "alice", changes[0].UserID)
	assert.True(t, changes[0].IsOnline)
	assert.Equal(t, f.clock.Now(), changes[0].Timestamp)

	assert.Empty(t, alice.Sent(), "the connecting user is not notified about themselves")

	last, ok, err := f.store.LastActive(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, f.clock.Now(), last)
}

func TestPublisher_OnDisconnectNotifiesPartner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	bob := f.connect("bob")
	f.publisher.OnDisconnect(ctx, "alice")

	changes := conntest.Messages[protocol.PresenceChange](bob)
	require.Len(t, changes, 1)
	assert.Equal(t, "alice", changes[0].UserID)
	assert.False(t, changes[0].IsOnline)
}

func TestPublisher_OfflinePartnerGetsNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	// Nobody is registered: the publish is a routing miss, not an error.
	f.publisher.OnConnect(context.Background(), "alice")
	assert.Equal(t, 0, f.registry.Len())
}

func TestPublisher_PartnersResolvedFresh(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	bob := f.connect("bob")
	carol := f.connect("carol")

	f.publisher.OnConnect(ctx, "alice")
	f.store.Unpair("alice", "bob")
	f.store.Pair("alice", "carol")
	f.publisher.Refresh(ctx, "alice")

	assert.Len(t, conntest.Messages[protocol.PresenceChange](bob), 1)
	assert.Len(t, conntest.Messages[protocol.PresenceChange](carol), 1)
}

func TestPublisher_Request(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		bobConnected bool
		bobActiveAgo time.Duration
		bobTouched   bool
		wantOnline   bool
		wantLastSeen bool
	}{
		{
			name:         "connected partner",
			bobConnected: true,
			bobTouched:   true,
			wantOnline:   true,
			wantLastSeen: true,
		},
		{
			name:         "recently active partner counts as online",
			bobActiveAgo: 4 * time.Minute,
			bobTouched:   true,
			wantOnline:   true,
			wantLastSeen: true,
		},
		{
			name:         "partner active outside the window",
			bobActiveAgo: 6 * time.Minute,
			bobTouched:   true,
			wantOnline:   false,
			wantLastSeen: true,
		},
		{
			name:         "partner never active",
			wantOnline:   false,
			wantLastSeen: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ctx := context.Background()

			if tt.bobTouched {
				require.NoError(t, f.store.Touch(ctx, "bob", f.clock.Now().Add(-tt.bobActiveAgo)))
			}
			if tt.bobConnected {
				f.connect("bob")
			}
			alice := f.connect("alice")

			f.publisher.Request(ctx, "alice")

			updates := conntest.Messages[protocol.PresenceUpdate](alice)
			require.Len(t, updates, 1)
			require.Len(t, updates[0].Partners, 1)

			got := updates[0].Partners[0]
			assert.Equal(t, "bob", got.UserID)
			assert.Equal(t, "Bob", got.Name)
			assert.Equal(t, "bob.png", got.ProfileImage)
			assert.Equal(t, tt.wantOnline, got.IsOnline)
			assert.Equal(t, tt.wantLastSeen, got.LastSeen != nil)
		})
	}
}

type mockRelationships struct {
	mock.Mock
}

func (m *mockRelationships) PartnersOf(ctx context.Context, userID string) ([]lovewise.Partner, error) {
	args := m.Called(ctx, userID)
	partners, _ := args.Get(0).([]lovewise.Partner)
	return partners, args.Error(1)
}

// TestPublisher_LookupFailureIsIsolated tests that a failing lookup for one user does
// not affect the next one
func TestPublisher_LookupFailureIsIsolated(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	logger := zaptest.NewLogger(t)
	reg := registry.New(clock, logger)

	rel := &mockRelationships{}
	rel.On("PartnersOf", mock.Anything, "alice").Return(nil, errors.New("connection refused")).Once()
	rel.On("PartnersOf", mock.Anything, "dave").Return([]lovewise.Partner{{UserID: "erin"}}, nil).Once()

	p := New(reg, rel, store.NewMemory(), clock, DefaultConfig(), logger)

	erin := conntest.New("erin")
	reg.Register("erin", erin)

	p.OnConnect(context.Background(), "alice")
	p.OnConnect(context.Background(), "dave")

	rel.AssertExpectations(t)
	changes := conntest.Messages[protocol.PresenceChange](erin)
	require.Len(t, changes, 1)
	assert.Equal(t, "dave", changes[0].UserID)
}

func TestPublisher_LookupUsesCallTimeout(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	reg := registry.New(clock, nil)

	rel := &mockRelationships{}
	rel.On("PartnersOf", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), "alice").Return([]lovewise.Partner{}, nil).Once()

	p := New(reg, rel, nil, clock, DefaultConfig(), nil)
	p.OnConnect(context.Background(), "alice")

	rel.AssertExpectations(t)
}
