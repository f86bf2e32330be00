package repository

import (
	"context"
	"errors"
	"time"

	"superfilm-backend/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReadStateRepository struct {
	pool *pgxpool.Pool
}

func NewReadStateRepository(pool *pgxpool.Pool) *ReadStateRepository {
	return &ReadStateRepository{pool: pool}
}

// Upsert moves the watermark forward. GREATEST keeps it monotonic when two
// devices report views out of order.
func (r *ReadStateRepository) Upsert(ctx context.Context, userID, channelID string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO read_watermarks (user_id, channel_id, last_read_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, channel_id)
		DO UPDATE SET last_read_at = GREATEST(read_watermarks.last_read_at, EXCLUDED.last_read_at)
	`, userID, channelID, at)
	return err
}

func (r *ReadStateRepository) Get(ctx context.Context, userID, channelID string) (*model.ReadWatermark, error) {
	w := &model.ReadWatermark{UserID: userID, ChannelID: channelID}
	err := r.pool.QueryRow(ctx, `
		SELECT last_read_at FROM read_watermarks WHERE user_id = $1 AND channel_id = $2
	`, userID, channelID).Scan(&w.LastReadAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}
