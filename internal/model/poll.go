package model

import "time"

// Poll is a voting widget attached to a carrier message. The poll and its
// carrier message have independent lifetimes: hard-deleting the message does
// not close the poll.
type Poll struct {
	ID            string       `json:"id"`
	ChannelID     string       `json:"channel_id"`
	CreatorID     string       `json:"creator_id"`
	Question      string       `json:"question"`
	AllowMultiple bool         `json:"allow_multiple"`
	Closed        bool         `json:"closed"`
	Options       []PollOption `json:"options,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

type PollOption struct {
	ID       string `json:"id"`
	PollID   string `json:"poll_id"`
	Label    string `json:"label"`
	Position int    `json:"position"`
}

// Tally maps option id to its live vote count.
type Tally map[string]int

// PollChange marks a poll whose votes or closed flag changed after a cursor
// timestamp. The polling change feed re-tallies each one.
type PollChange struct {
	PollID    string
	ChannelID string
	Closed    bool
	ChangedAt time.Time
}

type CreatePollRequest struct {
	Question      string   `json:"question" validate:"required,max=300"`
	AllowMultiple bool     `json:"allow_multiple"`
	Options       []string `json:"options" validate:"required,min=2,max=12,dive,required,max=100"`
}

type CastVoteRequest struct {
	OptionID    string `json:"option_id" validate:"required"`
	ClientToken string `json:"client_token" validate:"max=64"`
}
