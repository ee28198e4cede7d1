// Package messaging relays direct messages, read receipts and typing indicators
// between partners.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	lovewise "github.com/Washington-NKE/lovewise-relay"
	"github.com/Washington-NKE/lovewise-relay/internal/protocol"
	"github.com/Washington-NKE/lovewise-relay/internal/registry"
	"github.com/Washington-NKE/lovewise-relay/internal/telemetry"
)

var (
	ErrMissingReceiver = errors.New("message has no receiver")
	ErrEmptyMessage    = errors.New("message has neither content nor attachments")
	ErrMissingMessage  = errors.New("read receipt has no message id or sender")
)

// Draft is a direct message as submitted by its sender.
type Draft struct {
	ReceiverID     string
	RelationshipID string
	Content        string
	Attachments    json.RawMessage
}

// Router delivers direct messages to online receivers. It never queues: an offline
// receiver picks the message up from the store on its next load.
type Router struct {
	registry    *registry.Registry
	messages    lovewise.MessageStore
	clock       clockwork.Clock
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewRouter creates a Router. A nil MessageStore relays without persisting.
func NewRouter(
	reg *registry.Registry,
	messages lovewise.MessageStore,
	clock clockwork.Clock,
	callTimeout time.Duration,
	logger *zap.Logger,
) *Router {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry:    reg,
		messages:    messages,
		clock:       clock,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// Route persists a message from senderID, pushes it to the receiver if online
// together with their recomputed unread count, and acknowledges it to the sender.
// A persistence failure is logged; the message is still relayed.
func (r *Router) Route(ctx context.Context, senderID string, draft Draft) (lovewise.Message, error) {
	if draft.ReceiverID == "" {
		return lovewise.Message{}, ErrMissingReceiver
	}
	if draft.Content == "" && !protocol.HasData(draft.Attachments) {
		return lovewise.Message{}, ErrEmptyMessage
	}

	msg := lovewise.Message{
		ID:             uuid.New().String(),
		SenderID:       senderID,
		ReceiverID:     draft.ReceiverID,
		RelationshipID: draft.RelationshipID,
		Content:        draft.Content,
		Attachments:    draft.Attachments,
		CreatedAt:      r.clock.Now(),
	}
	telemetry.MessagesRouted.Add(ctx, 1)

	r.persist(ctx, msg)

	if r.registry.Online(msg.ReceiverID) {
		if r.registry.SendTo(ctx, msg.ReceiverID, protocol.NewNewMessage(msg)) {
			telemetry.MessagesDelivered.Add(ctx, 1)
		}
		r.PushUnreadCount(ctx, msg.ReceiverID)
	}

	r.registry.SendTo(ctx, senderID, protocol.NewMessageSent(msg.ID))
	return msg, nil
}

// RouteReadReceipt records that readerID read messageID, tells the original sender,
// and pushes the reader's own recomputed unread count.
func (r *Router) RouteReadReceipt(ctx context.Context, readerID, messageID, senderID string) error {
	if messageID == "" || senderID == "" {
		return ErrMissingMessage
	}

	if r.messages != nil {
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		err := r.messages.MarkRead(callCtx, messageID, readerID)
		cancel()
		if err != nil {
			telemetry.RecordCollaboratorFailure(ctx, "mark_read")
			r.logger.Warn("marking message read failed",
				zap.String("user_id", readerID),
				zap.String("message_id", messageID),
				zap.Error(err),
			)
		}
	}

	r.registry.SendTo(ctx, senderID, protocol.NewMessageRead(messageID, readerID))
	r.PushUnreadCount(ctx, readerID)
	return nil
}

// PushUnreadCount recomputes userID's unread count from the store and pushes it.
func (r *Router) PushUnreadCount(ctx context.Context, userID string) {
	if r.messages == nil || !r.registry.Online(userID) {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	count, err := r.messages.UnreadCount(callCtx, userID)
	if err != nil {
		telemetry.RecordCollaboratorFailure(ctx, "unread_count")
		r.logger.Warn("unread count failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	r.registry.SendTo(ctx, userID, protocol.NewUnreadCount(count))
}

func (r *Router) persist(ctx context.Context, msg lovewise.Message) {
	if r.messages == nil {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	if err := r.messages.SaveMessage(callCtx, msg); err != nil {
		telemetry.RecordCollaboratorFailure(ctx, "save_message")
		r.logger.Error("persisting message failed",
			zap.String("user_id", msg.SenderID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
}
