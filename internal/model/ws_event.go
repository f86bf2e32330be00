package model

import "encoding/json"

// Event types fanned out over the websocket and the change feed.
const (
	EventMessageCreated      = "message.created"
	EventMessageUpdated      = "message.updated"
	EventMessageRemoved      = "message.removed"
	EventVoteCast            = "poll.vote_cast"
	EventPollClosed          = "poll.closed"
	EventPresenceChanged     = "presence.changed"
	EventNotificationCreated = "notification.created"
)

// WSEvent is the envelope for everything pushed to clients. ChannelID scopes
// channel events; UserID scopes notification events to one recipient. Origin
// identifies the emitting instance on the shared change feed so an instance
// can skip events it already delivered locally.
type WSEvent struct {
	Type      string          `json:"type"`
	ChannelID string          `json:"channel_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Origin    string          `json:"origin,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type MessageEventData struct {
	Message     Message `json:"message"`
	ClientToken string  `json:"client_token,omitempty"`
}

type MessageRemovedData struct {
	MessageID int64 `json:"message_id"`
}

// VoteCastData carries the poll id and the authoritative tally, never a
// per-vote delta. Subscribers replace their local counts wholesale.
type VoteCastData struct {
	PollID string `json:"poll_id"`
	Tally  Tally  `json:"tally"`
}

type PresenceData struct {
	Count int `json:"count"`
}

type NotificationEventData struct {
	Notification Notification `json:"notification"`
	UnreadCount  int          `json:"unread_count"`
}
