// Package relay dispatches client frames to the presence, messaging and game
// components and runs the connect/disconnect lifecycle.
package relay

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	lovewise "github.com/Washington-NKE/lovewise-relay"
	"github.com/Washington-NKE/lovewise-relay/internal/game"
	"github.com/Washington-NKE/lovewise-relay/internal/messaging"
	"github.com/Washington-NKE/lovewise-relay/internal/presence"
	"github.com/Washington-NKE/lovewise-relay/internal/protocol"
	"github.com/Washington-NKE/lovewise-relay/internal/registry"
	"github.com/Washington-NKE/lovewise-relay/internal/telemetry"
)

var (
	errMissingReceiver = errors.New("frame has no valid receiverId")
	errMissingSession  = errors.New("frame has no game session id")
)

type handlerFunc func(ctx context.Context, conn lovewise.Conn, in protocol.Inbound) error

// Components are the collaborating parts of the relay the hub dispatches to.
type Components struct {
	Registry *registry.Registry
	Presence *presence.Publisher
	Router   *messaging.Router
	Typing   *messaging.Typing
	Games    *game.Sessions
}

// Stats is the body of the /stats endpoint.
type Stats struct {
	Connections   int      `json:"connections"`
	Users         []string `json:"users"`
	GameSessions  int      `json:"gameSessions"`
	PendingTyping int      `json:"pendingTyping"`
}

// Hub implements the websocket handler for the relay.
type Hub struct {
	Components
	logger   *zap.Logger
	handlers map[string]handlerFunc
}

// New creates a hub dispatching to c.
func New(c Components, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{Components: c, logger: logger}
	h.handlers = map[string]handlerFunc{
		lovewise.TypePing:               h.handlePing,
		lovewise.TypePong:               h.handlePong,
		lovewise.TypePresenceRefresh:    h.handlePresenceRefresh,
		lovewise.TypeRequestPresence:    h.handleRequestPresence,
		lovewise.TypeSendMessage:        h.handleSendMessage,
		lovewise.TypeMessageRead:        h.handleMessageRead,
		lovewise.TypeTypingStart:        h.handleTypingStart,
		lovewise.TypeTypingStop:         h.handleTypingStop,
		lovewise.TypeRequestUnreadCount: h.handleRequestUnreadCount,
		lovewise.TypeGameStart:          h.handleGameStart,
		lovewise.TypeGameMove:           h.handleGameMove,
		lovewise.TypeGameChat:           h.handleGameChat,
		lovewise.TypeGameEnd:            h.handleGameEnd,
		lovewise.TypeGameSync:           h.handleGameSync,
	}
	return h
}

// OnConnect registers conn, superseding any previous connection of the same user,
// and announces the user to their partners.
func (h *Hub) OnConnect(conn lovewise.Conn) {
	ctx := context.WithoutCancel(conn.Context())

	h.Registry.Register(conn.UserID(), conn)
	h.Presence.OnConnect(ctx, conn.UserID())
}

// OnMessage decodes one frame and runs its handler. Bad frames are dropped; the
// connection stays open.
func (h *Hub) OnMessage(conn lovewise.Conn, data []byte) {
	logger := h.logger.With(zap.String("user_id", conn.UserID()), zap.String("conn_id", conn.ID()))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	ctx := context.WithoutCancel(conn.Context())

	in, err := protocol.Decode(data)
	if err != nil {
		telemetry.FramesDropped.Add(ctx, 1)
		logger.Debug("dropping malformed frame", zap.Error(err))
		return
	}
	telemetry.RecordFrame(ctx, in.Type)

	handle, ok := h.handlers[in.Type]
	if !ok {
		telemetry.FramesDropped.Add(ctx, 1)
		logger.Debug("dropping frame of unknown type", zap.String("type", in.Type))
		return
	}

	if err := handle(ctx, conn, in); err != nil {
		telemetry.FramesDropped.Add(ctx, 1)
		logger.Debug("dropping frame", zap.String("type", in.Type), zap.Error(err))
	}
}

// OnPong records a protocol-level pong as a heartbeat.
func (h *Hub) OnPong(conn lovewise.Conn) {
	h.Registry.Touch(conn)
}

// OnDisconnect runs the offline path, unless conn was already superseded or evicted.
func (h *Hub) OnDisconnect(conn lovewise.Conn) {
	if !h.Registry.Release(conn) {
		return
	}
	h.Offline(context.WithoutCancel(conn.Context()), conn)
}

// Offline cancels the user's typing timers and tells their partners they left. The
// heartbeat monitor calls it after evicting a connection.
func (h *Hub) Offline(ctx context.Context, conn lovewise.Conn) {
	h.Typing.CancelFrom(conn.UserID())
	h.Presence.OnDisconnect(ctx, conn.UserID())
}

// Stats reports live connection, session and typing counts.
func (h *Hub) Stats() Stats {
	return Stats{
		Connections:   h.Registry.Len(),
		Users:         h.Registry.IDs(),
		GameSessions:  h.Games.Len(),
		PendingTyping: h.Typing.Pending(),
	}
}

func (h *Hub) handlePing(ctx context.Context, conn lovewise.Conn, in protocol.Inbound) error {
	h.Registry.Touch(conn)
	return conn.Send(ctx, protocol.NewPong(in.Timestamp))
}

func (h *Hub) handlePong(_ context.Context, conn lovewise.Conn, _ protocol.Inbound) error {
	h.Registry.Touch(conn)
	return nil
}

func (h *Hub) handlePresenceRefresh(ctx context.Context, conn lovewise.Conn, _ protocol.Inbound) error {
	h.Presence.Refresh(ctx, conn.UserID())
	return nil
}

func (h *Hub) handleRequestPresence(ctx context.Context, conn lovewise.Conn, _ protocol.Inbound) error {
	h.Presence.Request(ctx, conn.UserID())
	return nil
}

func (h *Hub) handleSendMessage(ctx context.Context, conn lovewise.Conn, in protocol.Inbound) error {
	_, err := h.Router.Route(ctx, conn.UserID(), messaging.Draft{
		ReceiverID:     in.ReceiverID,
		RelationshipID: in.RelationshipID,
		Content:        in.Content,
		Attachments:    in.Attachments,
	})
	return err
}

func (h *Hub) handleMessageRead(ctx context.Context, conn lovewise.Conn, in protocol.Inbound) error {
	return h.Router.RouteReadReceipt(ctx, conn.UserID(), in.MessageID, in.SenderID)
}

func (h *Hub) handleTypingStart(ctx context.Context, conn lovewise.Conn, in protocol.Inbound) error {
	if !protocol.ValidID(in.ReceiverID) {
		return errMissingReceiver
	}
	h.Typing.Start(ctx, conn.UserID(), in.ReceiverID)
	return nil
}

func (h *Hub) handleTypingStop(ctx context.Context, conn lovewise.Conn, in protocol.Inbound) error {
	if !protocol.ValidID(in.ReceiverID) {
		return errMissingReceiver
	}
	h.Typing.Stop(ctx, conn.UserID(), in.ReceiverID)
	return nil
}

func (h *Hub) handleRequestUnreadCount(ctx context.Context, conn lovewise.Conn, _ protocol.Inbound) error {
	h.Router.PushUnreadCount(ctx, conn.UserID())
	return nil
}

func (h *Hub) handleGameStart(ctx context.Context, conn lovewise.Conn, in protocol.Inbound) error {
	sessionID, err := gameSession(conn, in)
	if err != nil {
		return err
	}
	h.Games.Join(ctx, sessionID, conn.UserID())
	return nil
}

func (h *Hub) handleGameMove(ctx context.Context, conn lovewise.Conn, in protocol.Inbound) error {
	sessionID, err := gameSession(conn, in)
	if err != nil {
		return err
	}
	if !h.Games.Move(ctx, sessionID, conn.UserID(), in.Data) {
		h.logger.Debug("move to unknown game session",
			zap.String("user_id", conn.UserID()),
			zap.String("session_id", sessionID),
		)
	}
	return nil
}

func (h *Hub) handleGameChat(ctx context.Context, conn lovewise.Conn, in protocol.Inbound) error {
	sessionID, err := gameSession(conn, in)
	if err != nil {
		return err
	}
	h.Games.Chat(ctx, sessionID, conn.UserID(), in.Data)
	return nil
}

func (h *Hub) handleGameEnd(ctx context.Context, conn lovewise.Conn, in protocol.Inbound) error {
	sessionID, err := gameSession(conn, in)
	if err != nil {
		return err
	}
	h.Games.End(ctx, sessionID, in.Data)
	return nil
}

func (h *Hub) handleGameSync(ctx context.Context, conn lovewise.Conn, in protocol.Inbound) error {
	sessionID, err := gameSession(conn, in)
	if err != nil {
		return err
	}
	h.Games.Sync(ctx, sessionID, conn.UserID())
	return nil
}

// gameSession picks the session id from the frame, falling back to the one the
// connection was opened with.
func gameSession(conn lovewise.Conn, in protocol.Inbound) (string, error) {
	id := in.GameSessionID
	if id == "" {
		id = conn.SessionID()
	}
	if !protocol.ValidID(id) {
		return "", fmt.Errorf("%s: %w", in.Type, errMissingSession)
	}
	return id, nil
}
