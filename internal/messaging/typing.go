package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Washington-NKE/lovewise-relay/internal/protocol"
	"github.com/Washington-NKE/lovewise-relay/internal/registry"
)

// DefaultTypingTimeout is how long a typing indicator stays on without a refresh.
const DefaultTypingTimeout = 3 * time.Second

type pair struct {
	sender   string
	receiver string
}

type pendingStop struct {
	timer clockwork.Timer
}

// Typing relays typing indicators with a server-side expiry. There is at most one
// pending expiry per ordered (sender, receiver) pair.
type Typing struct {
	registry *registry.Registry
	clock    clockwork.Clock
	timeout  time.Duration

	mu     sync.Mutex
	timers map[pair]*pendingStop
}

// NewTyping creates a debouncer whose indicators expire after timeout.
func NewTyping(reg *registry.Registry, clock clockwork.Clock, timeout time.Duration) *Typing {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &Typing{
		registry: reg,
		clock:    clock,
		timeout:  timeout,
		timers:   make(map[pair]*pendingStop),
	}
}

// Start tells receiverID that senderID is typing and (re)arms the expiry. Calling
// Start repeatedly postpones the single stop event to timeout after the last call.
func (t *Typing) Start(ctx context.Context, senderID, receiverID string) {
	key := pair{sender: senderID, receiver: receiverID}

	// Pushes happen under the lock so start/stop/expiry for a pair reach the
	// receiver in the order they were decided.
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.timers[key]; ok {
		p.timer.Stop()
	}
	p := &pendingStop{}
	p.timer = t.clock.AfterFunc(t.timeout, func() { t.expire(key, p) })
	t.timers[key] = p

	t.registry.SendTo(ctx, receiverID, protocol.NewTypingIndicator(senderID, true))
}

// Stop cancels the pending expiry and tells receiverID that senderID stopped typing.
func (t *Typing) Stop(ctx context.Context, senderID, receiverID string) {
	key := pair{sender: senderID, receiver: receiverID}

	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.timers[key]; ok {
		p.timer.Stop()
		delete(t.timers, key)
	}
	t.registry.SendTo(ctx, receiverID, protocol.NewTypingIndicator(senderID, false))
}

// CancelFrom drops every pending expiry where senderID is the sender, without
// notifying anyone. Used when senderID disconnects.
func (t *Typing) CancelFrom(senderID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cancelled := 0
	for key, p := range t.timers {
		if key.sender != senderID {
			continue
		}
		p.timer.Stop()
		delete(t.timers, key)
		cancelled++
	}
	return cancelled
}

// Pending returns the number of armed expiries.
func (t *Typing) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

func (t *Typing) expire(key pair, p *pendingStop) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Replaced by a newer Start or cancelled after the timer fired.
	if t.timers[key] != p {
		return
	}
	delete(t.timers, key)
	t.registry.SendTo(context.Background(), key.receiver, protocol.NewTypingIndicator(key.sender, false))
}
