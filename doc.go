// Package lovewise is the real-time relay of the Lovewise couples' journal.
//
// The relay is a single long-lived WebSocket endpoint that tracks which users are
// online, fans chat messages and typing indicators out between the two people in a
// relationship, and multiplexes a turn-based two-player game over the same connection.
// It owns only in-memory state; messages, profiles and relationships belong to
// external collaborators (see Relationships, Activity and MessageStore).
//
// # Architecture
//
//   - Connection registry: one live connection per user id. A new connection for the
//     same user closes the old one with code 4000 ("superseded").
//   - Heartbeat monitor: pings every connection on an interval and terminates those
//     that have not answered within the timeout.
//   - Presence publisher: pushes presence_change events to a user's partners on
//     connect and disconnect, and answers request_presence.
//   - Message router: relays send_message and message_read between partners and
//     pushes recomputed unread counts.
//   - Typing debouncer: relays typing_start/typing_stop with a server-side expiry so a
//     stuck "typing" state heals itself.
//   - Game relay: join/move/chat/end scoped to a game session id. Game state is an
//     opaque JSON value the relay stores and forwards but never interprets.
//
// # Protocol
//
// Connect with:
//
//	ws://host/ws?userId=<id>&gameSessionId=<optional id>
//
// A missing user id closes the connection with 1008 (policy violation). Every frame is
// a JSON object with a "type" field:
//
//	{"type":"typing_start","receiverId":"b"}
//	{"type":"game_move","gameSessionId":"s1","data":{"board":["x","",""]}}
//
// Frames that fail to parse or carry an unknown type are dropped; the connection stays
// open.
//
// # Delivery
//
// Delivery is best-effort to whoever is registered at that moment. Nothing is queued
// for offline users: clients re-fetch persisted state and treat the relay as a
// real-time nudge. Frames from one connection are handled in arrival order, so
// messages between a sender and a receiver are delivered FIFO.
//
// # Game sessions
//
// Game moves carry a monotonically increasing seq number. A client that sees a gap
// sends game_sync and receives the latest game_state. The relay does not assign player
// roles: clients agree by ordering the two player ids lexicographically, the smaller id
// plays first.
//
// # Rate Limiting
//
// Each client has an independent token bucket (default 100 messages/second, burst
// 200). When it is exceeded the connection is closed with 1008.
package lovewise
