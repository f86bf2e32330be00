package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"superfilm-backend/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

const messageColumns = `id, channel_id, author_id, body, image_url, kind, poll_id, state, COALESCE(client_token, ''), created_at`

func scanMessage(row pgx.Row, m *model.Message) error {
	return row.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Body, &m.ImageURL,
		&m.Kind, &m.PollID, &m.State, &m.ClientToken, &m.CreatedAt)
}

// Insert appends a message and fills in the server-assigned id and timestamp.
// Retries carrying the same client token are absorbed by the partial unique
// index: the original row is returned and inserted reports false.
func (r *MessageRepository) Insert(ctx context.Context, m *model.Message) (inserted bool, err error) {
	var token *string
	if m.ClientToken != "" {
		token = &m.ClientToken
	}
	err = scanMessage(r.pool.QueryRow(ctx, `
		INSERT INTO messages (channel_id, author_id, body, image_url, kind, poll_id, client_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (channel_id, author_id, client_token) WHERE client_token IS NOT NULL DO NOTHING
		RETURNING `+messageColumns,
		m.ChannelID, m.AuthorID, m.Body, m.ImageURL, m.Kind, m.PollID, token), m)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || token == nil {
		return false, err
	}

	// Conflict: the token was already appended. Return the canonical row.
	err = scanMessage(r.pool.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE channel_id = $1 AND author_id = $2 AND client_token = $3
	`, m.ChannelID, m.AuthorID, m.ClientToken), m)
	return false, err
}

func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	m := &model.Message{}
	err := scanMessage(r.pool.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE id = $1
	`, id), m)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SoftDelete tombstones an active message: clears body and image, keeps the
// row. The conditional update is the compare-and-swap against a concurrent
// delete; transitioned reports whether this call performed the transition.
func (r *MessageRepository) SoftDelete(ctx context.Context, id int64) (m *model.Message, transitioned bool, err error) {
	m = &model.Message{}
	err = scanMessage(r.pool.QueryRow(ctx, `
		UPDATE messages SET state = 'soft_deleted', body = NULL, image_url = NULL
		WHERE id = $1 AND state = 'active'
		RETURNING `+messageColumns, id), m)
	if err == nil {
		return m, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	// Already transitioned (or gone). Idempotent second call returns the
	// current state instead of an error.
	m, err = r.GetByID(ctx, id)
	return m, false, err
}

// HardDelete physically removes a soft-deleted message. An active message is
// never hard-deleted directly.
func (r *MessageRepository) HardDelete(ctx context.Context, id int64) (removed bool, err error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM messages WHERE id = $1 AND state = 'soft_deleted'
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListBefore returns up to limit messages older than beforeID (all newest
// when beforeID is 0), in chronological order. Keyset pagination on
// (created_at, id) keeps ordering stable for equal timestamps. A beforeID
// whose row no longer exists (hard-deleted) is a stale cursor and reports
// ErrNotFound so the client refreshes instead of seeing a false end.
func (r *MessageRepository) ListBefore(ctx context.Context, channelID string, beforeID int64, limit int) ([]model.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE channel_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	args := []interface{}{channelID, limit}
	if beforeID > 0 {
		var cursorAt time.Time
		var cursorID int64
		err := r.pool.QueryRow(ctx, `
			SELECT created_at, id FROM messages WHERE id = $1
		`, beforeID).Scan(&cursorAt, &cursorID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pagination cursor %d: %w", beforeID, model.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		query = `
		SELECT ` + messageColumns + ` FROM messages
		WHERE channel_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`
		args = []interface{}{channelID, cursorAt, cursorID, limit}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-N selected DESC, reversed for chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MaxID returns the newest message id, or zero for an empty table. The
// polling change feed starts its cursor here.
func (r *MessageRepository) MaxID(ctx context.Context) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM messages`).Scan(&id)
	return id, err
}

// ListAfter returns messages newer than the cursor id, oldest first. Used by
// the polling change feed.
func (r *MessageRepository) ListAfter(ctx context.Context, afterID int64, limit int) ([]model.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE id > $1
		ORDER BY id
		LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CountAfter counts messages in a channel newer than the given watermark.
func (r *MessageRepository) CountAfter(ctx context.Context, channelID string, after time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages WHERE channel_id = $1 AND created_at > $2
	`, channelID, after).Scan(&count)
	return count, err
}
