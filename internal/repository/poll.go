package repository

import (
	"context"
	"errors"
	"time"

	"superfilm-backend/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PollRepository struct {
	pool *pgxpool.Pool
}

func NewPollRepository(pool *pgxpool.Pool) *PollRepository {
	return &PollRepository{pool: pool}
}

// Create inserts the poll and its options in one transaction.
func (r *PollRepository) Create(ctx context.Context, channelID, creatorID, question string, allowMultiple bool, options []string) (*model.Poll, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p := &model.Poll{ChannelID: channelID, CreatorID: creatorID, Question: question, AllowMultiple: allowMultiple}
	err = tx.QueryRow(ctx, `
		INSERT INTO polls (channel_id, creator_id, question, allow_multiple)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, channelID, creatorID, question, allowMultiple).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i, label := range options {
		opt := model.PollOption{PollID: p.ID, Label: label, Position: i}
		err = tx.QueryRow(ctx, `
			INSERT INTO poll_options (poll_id, label, position)
			VALUES ($1, $2, $3)
			RETURNING id
		`, p.ID, label, i).Scan(&opt.ID)
		if err != nil {
			return nil, err
		}
		p.Options = append(p.Options, opt)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PollRepository) GetByID(ctx context.Context, pollID string) (*model.Poll, error) {
	p := &model.Poll{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, channel_id, creator_id, question, allow_multiple, closed, created_at
		FROM polls WHERE id = $1
	`, pollID).Scan(&p.ID, &p.ChannelID, &p.CreatorID, &p.Question, &p.AllowMultiple, &p.Closed, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, poll_id, label, position FROM poll_options
		WHERE poll_id = $1 ORDER BY position
	`, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var opt model.PollOption
		if err := rows.Scan(&opt.ID, &opt.PollID, &opt.Label, &opt.Position); err != nil {
			return nil, err
		}
		p.Options = append(p.Options, opt)
	}
	return p, rows.Err()
}

// ReplaceVote is the single-choice transition: any prior vote by the voter on
// this poll is removed and the new one inserted, atomically in one
// transaction so a concurrent re-vote cannot leave two rows behind.
func (r *PollRepository) ReplaceVote(ctx context.Context, pollID, optionID, voterID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM poll_votes WHERE poll_id = $1 AND voter_id = $2
	`, pollID, voterID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO poll_votes (poll_id, option_id, voter_id) VALUES ($1, $2, $3)
	`, pollID, optionID, voterID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE polls SET last_vote_at = NOW() WHERE id = $1
	`, pollID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ToggleVote is the multi-choice transition: remove the (voter, option) row
// if present, insert it otherwise. The composite primary key guarantees no
// duplicates either way.
func (r *PollRepository) ToggleVote(ctx context.Context, pollID, optionID, voterID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM poll_votes WHERE poll_id = $1 AND option_id = $2 AND voter_id = $3
	`, pollID, optionID, voterID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.pool.Exec(ctx, `
			INSERT INTO poll_votes (poll_id, option_id, voter_id) VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, pollID, optionID, voterID); err != nil {
			return err
		}
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE polls SET last_vote_at = NOW() WHERE id = $1
	`, pollID)
	return err
}

// Close is one-way; closing an already-closed poll reports false.
func (r *PollRepository) Close(ctx context.Context, pollID string) (closed bool, err error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE polls SET closed = TRUE, last_vote_at = NOW() WHERE id = $1 AND closed = FALSE
	`, pollID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ChangedSince lists polls whose last_vote_at moved past the cursor, oldest
// change first. Votes bump it and close bumps it; a closed poll in the result
// therefore means the close itself happened inside the window.
func (r *PollRepository) ChangedSince(ctx context.Context, since time.Time, limit int) ([]model.PollChange, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, channel_id, closed, last_vote_at FROM polls
		WHERE last_vote_at > $1
		ORDER BY last_vote_at
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []model.PollChange
	for rows.Next() {
		var c model.PollChange
		if err := rows.Scan(&c.PollID, &c.ChannelID, &c.Closed, &c.ChangedAt); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// Tally counts vote rows live, per option. Options with no votes appear with
// a zero count.
func (r *PollRepository) Tally(ctx context.Context, pollID string) (model.Tally, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT o.id, COUNT(v.voter_id)
		FROM poll_options o
		LEFT JOIN poll_votes v ON v.option_id = o.id
		WHERE o.poll_id = $1
		GROUP BY o.id
	`, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tally := model.Tally{}
	for rows.Next() {
		var optionID string
		var count int
		if err := rows.Scan(&optionID, &count); err != nil {
			return nil, err
		}
		tally[optionID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tally) == 0 {
		return nil, model.ErrNotFound
	}
	return tally, nil
}
