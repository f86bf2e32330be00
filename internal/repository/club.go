package repository

import (
	"context"
	"errors"

	"superfilm-backend/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ClubRepository struct {
	pool *pgxpool.Pool
}

func NewClubRepository(pool *pgxpool.Pool) *ClubRepository {
	return &ClubRepository{pool: pool}
}

// RoleInChannel resolves a user's club role through the channel's owning
// club. Users outside the club get RoleNone.
func (r *ClubRepository) RoleInChannel(ctx context.Context, channelID, userID string) (model.ClubRole, error) {
	var role string
	err := r.pool.QueryRow(ctx, `
		SELECT m.role FROM club_members m
		JOIN channels c ON c.club_id = m.club_id
		WHERE c.id = $1 AND m.user_id = $2
	`, channelID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.RoleNone, nil
	}
	if err != nil {
		return model.RoleNone, err
	}
	return model.ClubRole(role), nil
}

func (r *ClubRepository) Role(ctx context.Context, clubID, userID string) (model.ClubRole, error) {
	var role string
	err := r.pool.QueryRow(ctx, `
		SELECT role FROM club_members WHERE club_id = $1 AND user_id = $2
	`, clubID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.RoleNone, nil
	}
	if err != nil {
		return model.RoleNone, err
	}
	return model.ClubRole(role), nil
}

// AdminClubs lists club ids where the user holds the admin role.
func (r *ClubRepository) AdminClubs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT club_id FROM club_members WHERE user_id = $1 AND role = 'admin'
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clubs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		clubs = append(clubs, id)
	}
	return clubs, rows.Err()
}

func (r *ClubRepository) PendingRequestCount(ctx context.Context, clubID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM club_join_requests WHERE club_id = $1 AND status = 'pending'
	`, clubID).Scan(&count)
	return count, err
}

// CreateJoinRequest records a pending application. The partial unique index
// absorbs duplicate submissions while one is still pending.
func (r *ClubRepository) CreateJoinRequest(ctx context.Context, clubID, userID, message string) (*model.JoinRequest, error) {
	req := &model.JoinRequest{ClubID: clubID, UserID: userID, Status: model.RequestPending, Message: message}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO club_join_requests (club_id, user_id, message)
		VALUES ($1, $2, $3)
		ON CONFLICT (club_id, user_id) WHERE status = 'pending' DO UPDATE SET message = EXCLUDED.message
		RETURNING id, created_at
	`, clubID, userID, message).Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// RespondJoinRequest settles a pending request. Responding to an
// already-settled request reports ErrNotFound so a double decision is
// surfaced rather than silently re-applied.
func (r *ClubRepository) RespondJoinRequest(ctx context.Context, requestID string, accept bool) (*model.JoinRequest, error) {
	status := model.RequestDeclined
	if accept {
		status = model.RequestAccepted
	}

	req := &model.JoinRequest{Status: status}
	err := r.pool.QueryRow(ctx, `
		UPDATE club_join_requests SET status = $2, responded_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING id, club_id, user_id, message, created_at, responded_at
	`, requestID, string(status)).Scan(&req.ID, &req.ClubID, &req.UserID, &req.Message, &req.CreatedAt, &req.RespondedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if accept {
		_, err = r.pool.Exec(ctx, `
			INSERT INTO club_members (club_id, user_id, role) VALUES ($1, $2, 'member')
			ON CONFLICT (club_id, user_id) DO NOTHING
		`, req.ClubID, req.UserID)
		if err != nil {
			return nil, err
		}
	}
	return req, nil
}

// ChannelOfClub returns the club's single channel id.
func (r *ClubRepository) ChannelOfClub(ctx context.Context, clubID string) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `SELECT id FROM channels WHERE club_id = $1`, clubID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", model.ErrNotFound
	}
	return id, err
}
