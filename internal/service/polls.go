package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"superfilm-backend/internal/model"
)

// PollStore is the durable poll/vote boundary. ReplaceVote and ToggleVote
// must each be atomic (single transaction, no partial state).
type PollStore interface {
	Create(ctx context.Context, channelID, creatorID, question string, allowMultiple bool, options []string) (*model.Poll, error)
	GetByID(ctx context.Context, pollID string) (*model.Poll, error)
	ReplaceVote(ctx context.Context, pollID, optionID, voterID string) error
	ToggleVote(ctx context.Context, pollID, optionID, voterID string) error
	Close(ctx context.Context, pollID string) (closed bool, err error)
	Tally(ctx context.Context, pollID string) (model.Tally, error)
}

const (
	minPollOptions = 2
	maxPollOptions = 12
)

// PollService is the sole writer of votes. Vote casting serializes per
// (poll, voter) so concurrent single-choice re-votes cannot interleave into
// two rows.
type PollService struct {
	store PollStore
	roles RoleSource
	hub   Broadcaster
	feed  EventFeed

	mu    sync.Mutex
	locks map[string]*voterLock
}

type voterLock struct {
	sync.Mutex
	refs int
}

func NewPollService(store PollStore, roles RoleSource, hub Broadcaster, feed EventFeed) *PollService {
	return &PollService{store: store, roles: roles, hub: hub, feed: feed, locks: make(map[string]*voterLock)}
}

// Create validates options and persists the poll. The carrier message is
// posted separately (two-step, so either step can be retried on its own).
func (s *PollService) Create(ctx context.Context, channelID, creatorID string, req *model.CreatePollRequest) (*model.Poll, error) {
	role, err := s.roles.RoleInChannel(ctx, channelID, creatorID)
	if err != nil {
		return nil, err
	}
	if role == model.RoleNone {
		return nil, fmt.Errorf("not a club member: %w", model.ErrForbidden)
	}

	seen := make(map[string]bool)
	var options []string
	for _, raw := range req.Options {
		label := strings.TrimSpace(raw)
		if label == "" {
			continue
		}
		key := strings.ToLower(label)
		if seen[key] {
			continue
		}
		seen[key] = true
		options = append(options, label)
	}
	if len(options) < minPollOptions {
		return nil, fmt.Errorf("poll needs at least %d distinct options: %w", minPollOptions, model.ErrValidation)
	}
	if len(options) > maxPollOptions {
		return nil, fmt.Errorf("poll allows at most %d options: %w", maxPollOptions, model.ErrValidation)
	}

	return s.store.Create(ctx, channelID, creatorID, strings.TrimSpace(req.Question), req.AllowMultiple, options)
}

// CastVote applies one voter transition and fans out the authoritative tally.
// Single-choice polls replace any prior vote; multi-choice polls toggle the
// (voter, option) membership.
func (s *PollService) CastVote(ctx context.Context, pollID, optionID, voterID string) (model.Tally, error) {
	poll, err := s.store.GetByID(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if poll.Closed {
		return nil, fmt.Errorf("cast vote: %w", model.ErrPollClosed)
	}

	valid := false
	for _, opt := range poll.Options {
		if opt.ID == optionID {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("option does not belong to poll: %w", model.ErrNotFound)
	}

	role, err := s.roles.RoleInChannel(ctx, poll.ChannelID, voterID)
	if err != nil {
		return nil, err
	}
	if role == model.RoleNone {
		return nil, fmt.Errorf("not a club member: %w", model.ErrForbidden)
	}

	unlock := s.lockVoter(pollID, voterID)
	if poll.AllowMultiple {
		err = s.store.ToggleVote(ctx, pollID, optionID, voterID)
	} else {
		err = s.store.ReplaceVote(ctx, pollID, optionID, voterID)
	}
	unlock()
	if err != nil {
		return nil, err
	}

	tally, err := s.store.Tally(ctx, pollID)
	if err != nil {
		return nil, err
	}

	data, merr := json.Marshal(model.VoteCastData{PollID: pollID, Tally: tally})
	if merr == nil {
		event := model.WSEvent{Type: model.EventVoteCast, ChannelID: poll.ChannelID, Data: data}
		s.hub.Broadcast(event)
		if err := s.feed.Publish(ctx, event); err != nil {
			log.Printf("[polls] feed publish: %v", err)
		}
	}
	return tally, nil
}

// Close is one-way and restricted to the poll creator.
func (s *PollService) Close(ctx context.Context, pollID, actorID string) error {
	poll, err := s.store.GetByID(ctx, pollID)
	if err != nil {
		return err
	}
	if poll.CreatorID != actorID {
		return fmt.Errorf("only the poll creator can close it: %w", model.ErrForbidden)
	}

	closed, err := s.store.Close(ctx, pollID)
	if err != nil {
		return err
	}
	if !closed {
		// Already closed; closing is idempotent.
		return nil
	}

	data, _ := json.Marshal(struct {
		PollID string `json:"poll_id"`
	}{PollID: pollID})
	event := model.WSEvent{Type: model.EventPollClosed, ChannelID: poll.ChannelID, Data: data}
	s.hub.Broadcast(event)
	if err := s.feed.Publish(ctx, event); err != nil {
		log.Printf("[polls] feed publish: %v", err)
	}
	return nil
}

func (s *PollService) Get(ctx context.Context, pollID string) (*model.Poll, error) {
	return s.store.GetByID(ctx, pollID)
}

// Tally is always derived live from vote rows, never cached server-side.
func (s *PollService) Tally(ctx context.Context, pollID string) (model.Tally, error) {
	return s.store.Tally(ctx, pollID)
}

// lockVoter serializes transitions per (poll, voter). Entries are reference
// counted so the map does not grow with every voter ever seen.
func (s *PollService) lockVoter(pollID, voterID string) (unlock func()) {
	key := pollID + ":" + voterID

	s.mu.Lock()
	l := s.locks[key]
	if l == nil {
		l = &voterLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
