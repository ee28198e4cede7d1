package lovewise

import "errors"

// Message types sent by clients.
const (
	TypePing               = "ping"
	TypePong               = "pong"
	TypePresenceRefresh    = "presence_update"
	TypeRequestPresence    = "request_presence"
	TypeSendMessage        = "send_message"
	TypeMessageRead        = "message_read"
	TypeTypingStart        = "typing_start"
	TypeTypingStop         = "typing_stop"
	TypeRequestUnreadCount = "request_unread_count"
	TypeGameStart          = "game_start"
	TypeGameMove           = "game_move"
	TypeGameChat           = "chat_message"
	TypeGameEnd            = "game_end"
	TypeGameSync           = "game_sync"
)

// Message types sent by the relay. Some share their name with a client type
// (ping, pong, presence_update, message_read, game_move, chat_message, game_end)
// but carry a different payload in that direction.
const (
	TypePresenceChange  = "presence_change"
	TypePresenceUpdate  = "presence_update"
	TypeNewMessage      = "new_message"
	TypeMessageSent     = "message_sent"
	TypeTypingIndicator = "typing_indicator"
	TypeUnreadCount     = "unread_count"
	TypePlayerJoined    = "player_joined"
	TypeGameState       = "game_state"
)

// WebSocket close codes. 4000-4999 is the range reserved for applications.
const (
	CloseNormal           = 1000
	ClosePolicyViolation  = 1008
	CloseSuperseded       = 4000
	CloseHeartbeatTimeout = 4001
)

// Close reasons.
const (
	ReasonMissingUserID    = "missing or invalid userId"
	ReasonSuperseded       = "superseded"
	ReasonHeartbeatTimeout = "heartbeat timeout"
	ReasonRateLimited      = "rate limit exceeded"
	ReasonServerShutdown   = "server shutting down"
)

var (
	ErrConnectionClosed     = errors.New("client connection is closed")
	ErrSendQueueFull        = errors.New("client send queue is full")
	ErrFailedToEncode       = errors.New("failed to encode message")
	ErrServerAlreadyRunning = errors.New("server already running")
)
