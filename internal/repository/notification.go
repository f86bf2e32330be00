package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"superfilm-backend/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

const notificationColumns = `id, recipient_id, type, actor_id, club_id, channel_id, title, message, link, created_at, read_at, seen_at`

func scanNotification(row pgx.Row, n *model.Notification) error {
	return row.Scan(&n.ID, &n.RecipientID, &n.Type, &n.ActorID, &n.ClubID, &n.ChannelID,
		&n.Title, &n.Message, &n.Link, &n.CreatedAt, &n.ReadAt, &n.SeenAt)
}

// Insert persists a notification unless an equivalent one (same recipient,
// type, actor and target) was recorded within the dedupe window; in that
// case the existing row is returned and inserted reports false. The dedupe
// window cannot be a unique index, so a transaction-scoped advisory lock on
// the logical event key serializes concurrent inserts of the same event.
func (r *NotificationRepository) Insert(ctx context.Context, n *model.Notification, dedupeWindow time.Duration) (inserted bool, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, dedupeKey(n)); err != nil {
		return false, err
	}

	since := time.Now().Add(-dedupeWindow)
	err = scanNotification(tx.QueryRow(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE recipient_id = $1 AND type = $2
		  AND actor_id IS NOT DISTINCT FROM $3
		  AND club_id IS NOT DISTINCT FROM $4
		  AND channel_id IS NOT DISTINCT FROM $5
		  AND created_at > $6
		ORDER BY created_at DESC LIMIT 1
	`, n.RecipientID, n.Type, n.ActorID, n.ClubID, n.ChannelID, since), n)
	if err == nil {
		return false, tx.Commit(ctx)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}

	err = scanNotification(tx.QueryRow(ctx, `
		INSERT INTO notifications (recipient_id, type, actor_id, club_id, channel_id, title, message, link)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+notificationColumns,
		n.RecipientID, n.Type, n.ActorID, n.ClubID, n.ChannelID, n.Title, n.Message, n.Link), n)
	if err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// dedupeKey identifies the logical event a notification describes.
func dedupeKey(n *model.Notification) string {
	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	return strings.Join([]string{
		"notif", n.RecipientID, n.Type, deref(n.ActorID), deref(n.ClubID), deref(n.ChannelID),
	}, "|")
}

// ListBefore pages durable notifications newest-first by (created_at, id).
func (r *NotificationRepository) ListBefore(ctx context.Context, recipientID string, beforeID int64, limit int) ([]model.Notification, error) {
	query := `
		SELECT ` + notificationColumns + ` FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	args := []interface{}{recipientID, limit}
	if beforeID > 0 {
		query = `
		SELECT ` + notificationColumns + ` FROM notifications
		WHERE recipient_id = $1
		  AND (created_at, id) < (SELECT created_at, id FROM notifications WHERE id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`
		args = []interface{}{recipientID, beforeID, limit}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := scanNotification(rows, &n); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (r *NotificationRepository) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read_at IS NULL
	`, recipientID).Scan(&count)
	return count, err
}

// MarkRead is idempotent; marking an already-read row reports false.
func (r *NotificationRepository) MarkRead(ctx context.Context, id int64, recipientID string) (marked bool, err error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET read_at = NOW(), seen_at = COALESCE(seen_at, NOW())
		WHERE id = $1 AND recipient_id = $2 AND read_at IS NULL
	`, id, recipientID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET read_at = NOW(), seen_at = COALESCE(seen_at, NOW())
		WHERE recipient_id = $1 AND read_at IS NULL
	`, recipientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MaxID returns the newest notification id, or zero for an empty table.
// The polling change feed starts its cursor here.
func (r *NotificationRepository) MaxID(ctx context.Context) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM notifications`).Scan(&id)
	return id, err
}

// ListAfter returns notifications newer than the cursor id, oldest first.
// Used by the polling change feed.
func (r *NotificationRepository) ListAfter(ctx context.Context, afterID int64, limit int) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE id > $1
		ORDER BY id
		LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := scanNotification(rows, &n); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}
