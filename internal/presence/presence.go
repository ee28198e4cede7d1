// Package presence tells a user's partners when the user comes online or goes offline.
//
// "Online" is derived, never stored: a user is online when the connection registry
// holds a connection for them. For presence requests a partner that is not connected
// but was active within Window still counts as online, which hides short reconnect
// gaps.
package presence

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	lovewise "github.com/Washington-NKE/lovewise-relay"
	"github.com/Washington-NKE/lovewise-relay/internal/protocol"
	"github.com/Washington-NKE/lovewise-relay/internal/registry"
	"github.com/Washington-NKE/lovewise-relay/internal/telemetry"
)

// Config holds the presence timings.
type Config struct {
	// Window during which a disconnected partner is still reported online.
	Window time.Duration
	// CallTimeout bounds every collaborator call.
	CallTimeout time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		Window:      5 * time.Minute,
		CallTimeout: 5 * time.Second,
	}
}

// Publisher pushes presence events to partners. Partners are resolved on every event,
// never cached, so pairing changes apply without a restart.
type Publisher struct {
	registry      *registry.Registry
	relationships lovewise.Relationships
	activity      lovewise.Activity
	clock         clockwork.Clock
	cfg           Config
	logger        *zap.Logger
}

// New creates a Publisher. Nil collaborators disable the features that need them.
func New(
	reg *registry.Registry,
	relationships lovewise.Relationships,
	activity lovewise.Activity,
	clock clockwork.Clock,
	cfg Config,
	logger *zap.Logger,
) *Publisher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		registry:      reg,
		relationships: relationships,
		activity:      activity,
		clock:         clock,
		cfg:           cfg,
		logger:        logger,
	}
}

// OnConnect records activity for userID and tells every connected partner that
// userID is online.
func (p *Publisher) OnConnect(ctx context.Context, userID string) {
	p.touch(ctx, userID)
	p.publish(ctx, userID, true)
}

// OnDisconnect records activity for userID, so "last seen" is the disconnect time,
// and tells every connected partner that userID is offline.
func (p *Publisher) OnDisconnect(ctx context.Context, userID string) {
	p.touch(ctx, userID)
	p.publish(ctx, userID, false)
}

// Refresh re-runs the connect notification for a client that pings presence
// periodically from an active tab.
func (p *Publisher) Refresh(ctx context.Context, userID string) {
	p.OnConnect(ctx, userID)
}

// Request answers userID with the presence of each of their partners.
func (p *Publisher) Request(ctx context.Context, userID string) {
	partners, ok := p.partnersOf(ctx, userID)
	if !ok {
		return
	}

	now := p.clock.Now()
	out := make([]protocol.PartnerPresence, 0, len(partners))
	for _, partner := range partners {
		entry := protocol.PartnerPresence{
			UserID:       partner.UserID,
			Name:         partner.Name,
			ProfileImage: partner.ProfileImage,
			IsOnline:     p.registry.Online(partner.UserID),
		}

		if last, found := p.lastActive(ctx, partner.UserID); found {
			entry.LastSeen = &last
			if !entry.IsOnline && now.Sub(last) <= p.cfg.Window {
				entry.IsOnline = true
			}
		}
		out = append(out, entry)
	}

	p.registry.SendTo(ctx, userID, protocol.NewPresenceUpdate(out))
}

func (p *Publisher) publish(ctx context.Context, userID string, online bool) {
	partners, ok := p.partnersOf(ctx, userID)
	if !ok {
		return
	}

	event := protocol.NewPresenceChange(userID, online, p.clock.Now())
	for _, partner := range partners {
		if partner.UserID == userID {
			continue
		}
		p.registry.SendTo(ctx, partner.UserID, event)
	}
}

func (p *Publisher) partnersOf(ctx context.Context, userID string) ([]lovewise.Partner, bool) {
	if p.relationships == nil {
		return nil, false
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	partners, err := p.relationships.PartnersOf(callCtx, userID)
	if err != nil {
		telemetry.RecordCollaboratorFailure(ctx, "partners_of")
		p.logger.Warn("partner lookup failed", zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	return partners, true
}

func (p *Publisher) lastActive(ctx context.Context, userID string) (time.Time, bool) {
	if p.activity == nil {
		return time.Time{}, false
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	last, found, err := p.activity.LastActive(callCtx, userID)
	if err != nil {
		telemetry.RecordCollaboratorFailure(ctx, "last_active")
		p.logger.Warn("last-active lookup failed", zap.String("user_id", userID), zap.Error(err))
		return time.Time{}, false
	}
	return last, found
}

func (p *Publisher) touch(ctx context.Context, userID string) {
	if p.activity == nil {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	if err := p.activity.Touch(callCtx, userID, p.clock.Now()); err != nil {
		telemetry.RecordCollaboratorFailure(ctx, "touch_last_active")
		p.logger.Warn("last-active update failed", zap.String("user_id", userID), zap.Error(err))
	}
}
