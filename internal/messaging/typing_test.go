package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Washington-NKE/lovewise-relay/internal/conntest"
	"github.com/Washington-NKE/lovewise-relay/internal/protocol"
	"github.com/Washington-NKE/lovewise-relay/internal/registry"
)

func newTypingFixture(t *testing.T) (*Typing, *clockwork.FakeClock, *conntest.Conn) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	reg := registry.New(clock, nil)
	bob := conntest.New("bob")
	reg.Register("bob", bob)
	return NewTyping(reg, clock, DefaultTypingTimeout), clock, bob
}

func indicators(conn *conntest.Conn, typing bool) int {
	n := 0
	for _, ind := range conntest.Messages[protocol.TypingIndicator](conn) {
		if ind.IsTyping == typing {
			n++
		}
	}
	return n
}

func TestTyping_StartExpires(t *testing.T) {
	t.Parallel()
	typing, clock, bob := newTypingFixture(t)

	typing.Start(context.Background(), "alice", "bob")
	require.Equal(t, 1, indicators(bob, true))
	require.Equal(t, 1, typing.Pending())

	clock.Advance(DefaultTypingTimeout)

	require.Eventually(t, func() bool { return indicators(bob, false) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, typing.Pending())

	ind := conntest.Messages[protocol.TypingIndicator](bob)
	assert.Equal(t, "alice", ind[len(ind)-1].SenderID)
}

func TestTyping_RepeatedStartDebounces(t *testing.T) {
	t.Parallel()
	typing, clock, bob := newTypingFixture(t)
	ctx := context.Background()

	for range 3 {
		typing.Start(ctx, "alice", "bob")
		clock.Advance(time.Second)
	}
	assert.Equal(t, 3, indicators(bob, true))
	assert.Equal(t, 1, typing.Pending(), "one pending expiry per pair")

	// Two seconds after the last start: nothing has expired yet.
	clock.Advance(time.Second)
	assert.Never(t, func() bool { return indicators(bob, false) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return indicators(bob, false) == 1 }, time.Second, 5*time.Millisecond)

	clock.Advance(time.Minute)
	assert.Never(t, func() bool { return indicators(bob, false) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestTyping_StopCancelsExpiry(t *testing.T) {
	t.Parallel()
	typing, clock, bob := newTypingFixture(t)
	ctx := context.Background()

	typing.Start(ctx, "alice", "bob")
	typing.Stop(ctx, "alice", "bob")

	assert.Equal(t, 1, indicators(bob, false))
	assert.Equal(t, 0, typing.Pending())

	clock.Advance(time.Minute)
	assert.Never(t, func() bool { return indicators(bob, false) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestTyping_StopWithoutStart(t *testing.T) {
	t.Parallel()
	typing, _, bob := newTypingFixture(t)

	typing.Stop(context.Background(), "alice", "bob")
	assert.Equal(t, 1, indicators(bob, false))
}

func TestTyping_CancelFromIsSilent(t *testing.T) {
	t.Parallel()
	typing, clock, bob := newTypingFixture(t)
	ctx := context.Background()

	typing.Start(ctx, "alice", "bob")
	typing.Start(ctx, "alice", "carol")
	typing.Start(ctx, "dave", "bob")
	require.Equal(t, 3, typing.Pending())

	assert.Equal(t, 2, typing.CancelFrom("alice"))
	assert.Equal(t, 1, typing.Pending())

	clock.Advance(DefaultTypingTimeout)
	require.Eventually(t, func() bool { return indicators(bob, false) == 1 }, time.Second, 5*time.Millisecond)

	for _, ind := range conntest.Messages[protocol.TypingIndicator](bob) {
		if !ind.IsTyping {
			assert.Equal(t, "dave", ind.SenderID, "only the uncancelled pair expires")
		}
	}
}
