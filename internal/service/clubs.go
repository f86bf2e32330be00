package service

import (
	"context"
	"fmt"
	"log"

	"superfilm-backend/internal/model"
)

// ClubStore is the membership boundary used for join-request flows.
type ClubStore interface {
	Role(ctx context.Context, clubID, userID string) (model.ClubRole, error)
	CreateJoinRequest(ctx context.Context, clubID, userID, message string) (*model.JoinRequest, error)
	RespondJoinRequest(ctx context.Context, requestID string, accept bool) (*model.JoinRequest, error)
}

// ClubService handles membership applications. Decisions produce durable
// notifications for the applicant; pending applications surface to admins as
// synthetic feed items derived elsewhere.
type ClubService struct {
	store         ClubStore
	notifications *NotificationService
}

func NewClubService(store ClubStore, notifications *NotificationService) *ClubService {
	return &ClubService{store: store, notifications: notifications}
}

// RequestJoin files (or refreshes) a pending application.
func (s *ClubService) RequestJoin(ctx context.Context, clubID, userID, message string) (*model.JoinRequest, error) {
	role, err := s.store.Role(ctx, clubID, userID)
	if err != nil {
		return nil, err
	}
	if role != model.RoleNone {
		return nil, fmt.Errorf("already a member: %w", model.ErrValidation)
	}
	return s.store.CreateJoinRequest(ctx, clubID, userID, message)
}

// Respond settles a pending application. Admin only; the applicant gets a
// durable membership-decision notification.
func (s *ClubService) Respond(ctx context.Context, clubID, requestID, actorID string, accept bool) (*model.JoinRequest, error) {
	role, err := s.store.Role(ctx, clubID, actorID)
	if err != nil {
		return nil, err
	}
	if role != model.RoleAdmin {
		return nil, fmt.Errorf("responding to requests requires a club admin: %w", model.ErrForbidden)
	}

	req, err := s.store.RespondJoinRequest(ctx, requestID, accept)
	if err != nil {
		return nil, err
	}
	if req.ClubID != clubID {
		return nil, fmt.Errorf("request belongs to another club: %w", model.ErrNotFound)
	}

	notifType := model.NotifMembershipDeclined
	title := "Membership declined"
	message := "Your request to join was declined."
	if accept {
		notifType = model.NotifMembershipAccepted
		title = "Welcome to the club"
		message = "Your request to join was accepted."
	}
	if _, err := s.notifications.Record(ctx, &model.Notification{
		RecipientID: req.UserID,
		Type:        notifType,
		ActorID:     &actorID,
		ClubID:      &req.ClubID,
		Title:       title,
		Message:     message,
		Link:        "/clubs/" + req.ClubID,
	}); err != nil {
		// The decision stands even if the notification write fails.
		log.Printf("[clubs] decision notification for %s: %v", req.UserID, err)
	}
	return req, nil
}
