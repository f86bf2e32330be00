package model

import "time"

type ClubRole string

const (
	RoleNone   ClubRole = ""
	RoleMember ClubRole = "member"
	RoleAdmin  ClubRole = "admin"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestDeclined RequestStatus = "declined"
)

// JoinRequest is a user's pending application to a club. Pending requests are
// the source state for synthetic notifications shown to club admins.
type JoinRequest struct {
	ID          string        `json:"id"`
	ClubID      string        `json:"club_id"`
	UserID      string        `json:"user_id"`
	Status      RequestStatus `json:"status"`
	Message     string        `json:"message,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	RespondedAt *time.Time    `json:"responded_at,omitempty"`
}

type JoinClubRequest struct {
	Message string `json:"message" validate:"max=500"`
}

type RespondRequest struct {
	Accept bool `json:"accept"`
}
