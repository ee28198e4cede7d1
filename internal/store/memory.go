package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	lovewise "github.com/Washington-NKE/lovewise-relay"
)

// Memory implements every collaborator in process memory. It backs mem:// DSNs for
// local development and tests.
type Memory struct {
	mu         sync.RWMutex
	profiles   map[string]lovewise.Partner
	pairs      map[string]map[string]struct{}
	lastActive map[string]time.Time
	messages   map[string]*lovewise.Message
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		profiles:   make(map[string]lovewise.Partner),
		pairs:      make(map[string]map[string]struct{}),
		lastActive: make(map[string]time.Time),
		messages:   make(map[string]*lovewise.Message),
	}
}

// AddUser stores the profile shown in presence updates.
func (m *Memory) AddUser(id, name, profileImage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[id] = lovewise.Partner{UserID: id, Name: name, ProfileImage: profileImage}
}

// Pair creates an active relationship between a and b.
func (m *Memory) Pair(a, b string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.link(a, b)
	m.link(b, a)
}

// Unpair ends the relationship between a and b.
func (m *Memory) Unpair(a, b string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pairs[a], b)
	delete(m.pairs[b], a)
}

func (m *Memory) link(from, to string) {
	if m.pairs[from] == nil {
		m.pairs[from] = make(map[string]struct{})
	}
	m.pairs[from][to] = struct{}{}
}

// PartnersOf returns the users paired with userID.
func (m *Memory) PartnersOf(_ context.Context, userID string) ([]lovewise.Partner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.pairs[userID]))
	for id := range m.pairs[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	partners := make([]lovewise.Partner, 0, len(ids))
	for _, id := range ids {
		profile, ok := m.profiles[id]
		if !ok {
			profile = lovewise.Partner{UserID: id}
		}
		partners = append(partners, profile)
	}
	return partners, nil
}

// Touch records at as userID's last activity.
func (m *Memory) Touch(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActive[userID] = at
	return nil
}

// LastActive returns userID's last recorded activity.
func (m *Memory) LastActive(_ context.Context, userID string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.lastActive[userID]
	return at, ok, nil
}

// SaveMessage stores msg.
func (m *Memory) SaveMessage(_ context.Context, msg lovewise.Message) error {
	if msg.ID == "" {
		return fmt.Errorf("save message: %w", ErrMissingID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored := msg
	m.messages[msg.ID] = &stored
	return nil
}

// MarkRead marks messageID read when readerID is its receiver.
func (m *Memory) MarkRead(_ context.Context, messageID, readerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[messageID]
	if !ok || msg.ReceiverID != readerID {
		return fmt.Errorf("mark message %s read: %w", messageID, ErrNotFound)
	}
	msg.IsRead = true
	return nil
}

// UnreadCount counts the unread messages addressed to userID.
func (m *Memory) UnreadCount(_ context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, msg := range m.messages {
		if msg.ReceiverID == userID && !msg.IsRead {
			count++
		}
	}
	return count, nil
}

// Message returns a stored message.
func (m *Memory) Message(id string) (lovewise.Message, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[id]
	if !ok {
		return lovewise.Message{}, false
	}
	return *msg, true
}
