package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	lovewise "github.com/Washington-NKE/lovewise-relay"
)

// The schema is owned by the web application; the relay only reads relationships and
// profiles and writes last-active timestamps and messages.
const (
	queryPartnersOf = `
SELECT u.id, COALESCE(u.name, ''), COALESCE(u.profile_image, '')
FROM relationships r
JOIN users u ON u.id = CASE WHEN r.user1_id = $1 THEN r.user2_id ELSE r.user1_id END
WHERE (r.user1_id = $1 OR r.user2_id = $1) AND r.status = 'ACTIVE'
ORDER BY u.id`

	queryTouch = `UPDATE users SET last_active = $2 WHERE id = $1`

	queryLastActive = `SELECT last_active FROM users WHERE id = $1`

	querySaveMessage = `
INSERT INTO messages (id, sender_id, receiver_id, relationship_id, content, attachments, is_read, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)`

	queryMarkRead = `UPDATE messages SET is_read = TRUE WHERE id = $1 AND receiver_id = $2`

	queryUnreadCount = `SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND is_read = FALSE`
)

// Postgres implements every collaborator over a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a pool and verifies connectivity.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// PartnersOf returns the other user of every active relationship of userID.
func (p *Postgres) PartnersOf(ctx context.Context, userID string) ([]lovewise.Partner, error) {
	rows, err := p.pool.Query(ctx, queryPartnersOf, userID)
	if err != nil {
		return nil, fmt.Errorf("query partners of %s: %w", userID, err)
	}

	partners, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (lovewise.Partner, error) {
		var partner lovewise.Partner
		err := row.Scan(&partner.UserID, &partner.Name, &partner.ProfileImage)
		return partner, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan partners of %s: %w", userID, err)
	}
	return partners, nil
}

// Touch updates users.last_active.
func (p *Postgres) Touch(ctx context.Context, userID string, at time.Time) error {
	if _, err := p.pool.Exec(ctx, queryTouch, userID, at); err != nil {
		return fmt.Errorf("update last active of %s: %w", userID, err)
	}
	return nil
}

// LastActive reads users.last_active. A null column reports not found.
func (p *Postgres) LastActive(ctx context.Context, userID string) (time.Time, bool, error) {
	var at *time.Time
	err := p.pool.QueryRow(ctx, queryLastActive, userID).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last active of %s: %w", userID, err)
	}
	if at == nil {
		return time.Time{}, false, nil
	}
	return *at, true, nil
}

// SaveMessage inserts msg into messages.
func (p *Postgres) SaveMessage(ctx context.Context, msg lovewise.Message) error {
	if msg.ID == "" {
		return fmt.Errorf("save message: %w", ErrMissingID)
	}

	var attachments any
	if len(msg.Attachments) > 0 {
		attachments = string(msg.Attachments)
	}

	_, err := p.pool.Exec(ctx, querySaveMessage,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.RelationshipID,
		msg.Content, attachments, msg.IsRead, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message %s: %w", msg.ID, err)
	}
	return nil
}

// MarkRead sets is_read on messageID when readerID is its receiver.
func (p *Postgres) MarkRead(ctx context.Context, messageID, readerID string) error {
	tag, err := p.pool.Exec(ctx, queryMarkRead, messageID, readerID)
	if err != nil {
		return fmt.Errorf("mark message %s read: %w", messageID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark message %s read: %w", messageID, ErrNotFound)
	}
	return nil
}

// UnreadCount counts unread messages addressed to userID.
func (p *Postgres) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	if err := p.pool.QueryRow(ctx, queryUnreadCount, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread messages of %s: %w", userID, err)
	}
	return count, nil
}
