package model

import "time"

type MessageKind string

const (
	KindText MessageKind = "text"
	KindPoll MessageKind = "poll"
)

type ModerationState string

const (
	StateActive      ModerationState = "active"
	StateSoftDeleted ModerationState = "soft_deleted"
)

// Message is a stored channel message row. Ordering is by (created_at, id);
// id ties are broken by insertion sequence. A soft-deleted message keeps its
// row with body/image cleared; a hard-deleted message has no row at all.
type Message struct {
	ID          int64           `json:"id"`
	ChannelID   string          `json:"channel_id"`
	AuthorID    string          `json:"author_id"`
	Body        *string         `json:"body"`
	ImageURL    *string         `json:"image_url"`
	Kind        MessageKind     `json:"kind"`
	PollID      *string         `json:"poll_id,omitempty"`
	State       ModerationState `json:"state"`
	ClientToken string          `json:"client_token,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SendMessageRequest is the payload for posting a new message. ClientToken is
// the caller-generated correlation id echoed back in the stored message and
// its created event; retries with the same token are idempotent.
type SendMessageRequest struct {
	Body        string `json:"body" validate:"max=4000"`
	ImageURL    string `json:"image_url" validate:"omitempty,url"`
	Kind        string `json:"kind" validate:"omitempty,oneof=text poll"`
	PollID      string `json:"poll_id"`
	ClientToken string `json:"client_token" validate:"max=64"`
}

// ReportMessageRequest flags a message for the moderation-report backend.
type ReportMessageRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}
