package model

import "time"

// Notification types recorded by domain events.
const (
	NotifFollow             = "follow"
	NotifMention            = "mention"
	NotifMembershipAccepted = "membership_accepted"
	NotifMembershipDeclined = "membership_declined"
	NotifPendingRequests    = "pending_requests" // synthetic only
)

// Notification is a durable per-user feed row. Only read_at/seen_at are ever
// mutated; rows are never deleted.
type Notification struct {
	ID          int64      `json:"id"`
	RecipientID string     `json:"recipient_id"`
	Type        string     `json:"type"`
	ActorID     *string    `json:"actor_id,omitempty"`
	ClubID      *string    `json:"club_id,omitempty"`
	ChannelID   *string    `json:"channel_id,omitempty"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Link        string     `json:"link,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	SeenAt      *time.Time `json:"seen_at,omitempty"`
}

// FeedItem is one entry of the merged notification feed. Durable items carry
// the notification row id; synthetic items carry a deterministic derived key
// so they deduplicate against themselves across refreshes and disappear when
// the underlying condition resolves.
type FeedItem struct {
	Key       string    `json:"key"`
	Synthetic bool      `json:"synthetic"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	ClubID    string    `json:"club_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`

	// Set for durable items only.
	Notification *Notification `json:"notification,omitempty"`
}

// ReadWatermark is the per-user per-channel last-read position used for
// unread message counts, independent of notification rows.
type ReadWatermark struct {
	UserID     string    `json:"user_id"`
	ChannelID  string    `json:"channel_id"`
	LastReadAt time.Time `json:"last_read_at"`
}
