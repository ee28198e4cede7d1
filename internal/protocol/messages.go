package protocol

import (
	"encoding/json"
	"time"

	lovewise "github.com/Washington-NKE/lovewise-relay"
)

// Ping is sent by the heartbeat monitor. Pong answers a client ping and echoes its
// timestamp.
type Ping struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// Pong answers a client ping.
type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// NewPing stamps a heartbeat ping with at in Unix milliseconds.
func NewPing(at time.Time) Ping {
	return Ping{Type: lovewise.TypePing, Timestamp: at.UnixMilli()}
}

// NewPong echoes the timestamp of the client's ping.
func NewPong(timestamp int64) Pong {
	return Pong{Type: lovewise.TypePong, Timestamp: timestamp}
}

// PresenceChange tells a partner that a user came online or went offline.
type PresenceChange struct {
	Type      string    `json:"type"`
	UserID    string    `json:"userId"`
	IsOnline  bool      `json:"isOnline"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPresenceChange returns a presence_change frame.
func NewPresenceChange(userID string, online bool, at time.Time) PresenceChange {
	return PresenceChange{Type: lovewise.TypePresenceChange, UserID: userID, IsOnline: online, Timestamp: at}
}

// PartnerPresence is one entry of a presence_update.
type PartnerPresence struct {
	UserID       string     `json:"userId"`
	Name         string     `json:"name"`
	ProfileImage string     `json:"profileImage"`
	IsOnline     bool       `json:"isOnline"`
	LastSeen     *time.Time `json:"lastSeen"`
}

// PresenceUpdate answers request_presence.
type PresenceUpdate struct {
	Type     string            `json:"type"`
	Partners []PartnerPresence `json:"partners"`
}

// NewPresenceUpdate returns a presence_update frame. A nil list encodes as [].
func NewPresenceUpdate(partners []PartnerPresence) PresenceUpdate {
	if partners == nil {
		partners = []PartnerPresence{}
	}
	return PresenceUpdate{Type: lovewise.TypePresenceUpdate, Partners: partners}
}

// NewMessage delivers a direct message to its receiver.
type NewMessage struct {
	Type    string           `json:"type"`
	Message lovewise.Message `json:"message"`
}

// NewNewMessage returns a new_message frame.
func NewNewMessage(msg lovewise.Message) NewMessage {
	return NewMessage{Type: lovewise.TypeNewMessage, Message: msg}
}

// MessageSent acknowledges a send_message to its sender.
type MessageSent struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
}

// NewMessageSent returns a message_sent frame.
func NewMessageSent(messageID string) MessageSent {
	return MessageSent{Type: lovewise.TypeMessageSent, MessageID: messageID}
}

// MessageRead tells a sender their message was read.
type MessageRead struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
	ReadBy    string `json:"readBy"`
}

// NewMessageRead returns a message_read frame.
func NewMessageRead(messageID, readBy string) MessageRead {
	return MessageRead{Type: lovewise.TypeMessageRead, MessageID: messageID, ReadBy: readBy}
}

// TypingIndicator tells a receiver whether the sender is typing.
type TypingIndicator struct {
	Type     string `json:"type"`
	SenderID string `json:"senderId"`
	IsTyping bool   `json:"isTyping"`
}

// NewTypingIndicator returns a typing_indicator frame.
func NewTypingIndicator(senderID string, typing bool) TypingIndicator {
	return TypingIndicator{Type: lovewise.TypeTypingIndicator, SenderID: senderID, IsTyping: typing}
}

// UnreadCount carries a user's unread message count.
type UnreadCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// NewUnreadCount returns an unread_count frame.
func NewUnreadCount(count int) UnreadCount {
	return UnreadCount{Type: lovewise.TypeUnreadCount, Count: count}
}

// PlayerJoined announces a member of a game session.
type PlayerJoined struct {
	Type        string `json:"type"`
	PlayerID    string `json:"playerId"`
	PlayerCount int    `json:"playerCount"`
}

// NewPlayerJoined returns a player_joined frame.
func NewPlayerJoined(playerID string, count int) PlayerJoined {
	return PlayerJoined{Type: lovewise.TypePlayerJoined, PlayerID: playerID, PlayerCount: count}
}

// GameState carries the latest move data of a session and its sequence number.
type GameState struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
	Seq  uint64          `json:"seq"`
}

// NewGameState returns a game_state frame.
func NewGameState(data json.RawMessage, seq uint64) GameState {
	return GameState{Type: lovewise.TypeGameState, Data: data, Seq: seq}
}

// GameMove relays one move to the other members.
type GameMove struct {
	Type     string          `json:"type"`
	PlayerID string          `json:"playerId"`
	Data     json.RawMessage `json:"data"`
	Seq      uint64          `json:"seq"`
}

// NewGameMove returns a game_move frame.
func NewGameMove(playerID string, data json.RawMessage, seq uint64) GameMove {
	return GameMove{Type: lovewise.TypeGameMove, PlayerID: playerID, Data: data, Seq: seq}
}

// GameChat relays an in-game chat line.
type GameChat struct {
	Type     string          `json:"type"`
	PlayerID string          `json:"playerId"`
	Data     json.RawMessage `json:"data"`
}

// NewGameChat returns a chat_message frame.
func NewGameChat(playerID string, data json.RawMessage) GameChat {
	return GameChat{Type: lovewise.TypeGameChat, PlayerID: playerID, Data: data}
}

// GameEnd tells every member the game is over.
type GameEnd struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewGameEnd returns a game_end frame.
func NewGameEnd(data json.RawMessage) GameEnd {
	return GameEnd{Type: lovewise.TypeGameEnd, Data: data}
}
