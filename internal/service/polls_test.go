package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"superfilm-backend/internal/model"
)

// memPollStore keeps polls and votes in memory with set semantics matching
// the vote table's primary key.
type memPollStore struct {
	mu     sync.Mutex
	nextID int
	polls  map[string]*model.Poll
	votes  map[string]map[string]map[string]bool // poll -> voter -> option
}

func newMemPollStore() *memPollStore {
	return &memPollStore{polls: make(map[string]*model.Poll), votes: make(map[string]map[string]map[string]bool)}
}

func (s *memPollStore) Create(ctx context.Context, channelID, creatorID, question string, allowMultiple bool, options []string) (*model.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p := &model.Poll{
		ID:            fmt.Sprintf("poll-%d", s.nextID),
		ChannelID:     channelID,
		CreatorID:     creatorID,
		Question:      question,
		AllowMultiple: allowMultiple,
		CreatedAt:     time.Now(),
	}
	for i, label := range options {
		p.Options = append(p.Options, model.PollOption{
			ID:       fmt.Sprintf("%s-opt-%d", p.ID, i),
			PollID:   p.ID,
			Label:    label,
			Position: i,
		})
	}
	s.polls[p.ID] = p
	s.votes[p.ID] = make(map[string]map[string]bool)
	return p, nil
}

func (s *memPollStore) GetByID(ctx context.Context, pollID string) (*model.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[pollID]
	if !ok {
		return nil, fmt.Errorf("poll %s: %w", pollID, model.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *memPollStore) ReplaceVote(ctx context.Context, pollID, optionID, voterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[pollID][voterID] = map[string]bool{optionID: true}
	return nil
}

func (s *memPollStore) ToggleVote(ctx context.Context, pollID, optionID, voterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byVoter := s.votes[pollID]
	if byVoter[voterID] == nil {
		byVoter[voterID] = make(map[string]bool)
	}
	if byVoter[voterID][optionID] {
		delete(byVoter[voterID], optionID)
	} else {
		byVoter[voterID][optionID] = true
	}
	return nil
}

func (s *memPollStore) Close(ctx context.Context, pollID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[pollID]
	if !ok {
		return false, fmt.Errorf("poll %s: %w", pollID, model.ErrNotFound)
	}
	if p.Closed {
		return false, nil
	}
	p.Closed = true
	return true, nil
}

func (s *memPollStore) Tally(ctx context.Context, pollID string) (model.Tally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[pollID]
	if !ok {
		return nil, fmt.Errorf("poll %s: %w", pollID, model.ErrNotFound)
	}
	tally := make(model.Tally, len(p.Options))
	for _, opt := range p.Options {
		tally[opt.ID] = 0
	}
	for _, options := range s.votes[pollID] {
		for optionID := range options {
			tally[optionID]++
		}
	}
	return tally, nil
}

func newTestPollService(store PollStore) (*PollService, *recordingHub) {
	hub := &recordingHub{}
	return NewPollService(store, memberRoles(), hub, &recordingFeed{}), hub
}

func TestCreatePollOptionRules(t *testing.T) {
	svc, _ := newTestPollService(newMemPollStore())
	ctx := context.Background()

	cases := []struct {
		name    string
		options []string
		wantErr error
	}{
		{"duplicate labels collapse below minimum", []string{"Dune", "dune", "  DUNE  "}, model.ErrValidation},
		{"single option", []string{"only"}, model.ErrValidation},
		{"blank options ignored", []string{"Alien", "  ", "Heat"}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, "ch1", "alice", &model.CreatePollRequest{Question: "pick one", Options: tc.options})
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCastVoteSingleChoiceReplaces(t *testing.T) {
	store := newMemPollStore()
	svc, hub := newTestPollService(store)
	ctx := context.Background()

	poll, err := svc.Create(ctx, "ch1", "alice", &model.CreatePollRequest{Question: "next film", Options: []string{"Alien", "Heat"}})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	optA, optB := poll.Options[0].ID, poll.Options[1].ID

	if _, err := svc.CastVote(ctx, poll.ID, optA, "bob"); err != nil {
		t.Fatalf("first vote failed: %v", err)
	}
	tally, err := svc.CastVote(ctx, poll.ID, optB, "bob")
	if err != nil {
		t.Fatalf("re-vote failed: %v", err)
	}
	if tally[optA] != 0 || tally[optB] != 1 {
		t.Fatalf("single-choice re-vote must move the vote, got %v", tally)
	}
	if got := len(hub.byType(model.EventVoteCast)); got != 2 {
		t.Fatalf("expected a vote_cast event per cast, got %d", got)
	}
}

func TestCastVoteMultiChoiceToggles(t *testing.T) {
	store := newMemPollStore()
	svc, _ := newTestPollService(store)
	ctx := context.Background()

	poll, err := svc.Create(ctx, "ch1", "alice", &model.CreatePollRequest{Question: "watchlist", AllowMultiple: true, Options: []string{"Alien", "Heat"}})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	opt := poll.Options[0].ID

	tally, err := svc.CastVote(ctx, poll.ID, opt, "bob")
	if err != nil {
		t.Fatalf("vote on failed: %v", err)
	}
	if tally[opt] != 1 {
		t.Fatalf("expected count 1 after toggle on, got %d", tally[opt])
	}
	tally, err = svc.CastVote(ctx, poll.ID, opt, "bob")
	if err != nil {
		t.Fatalf("vote off failed: %v", err)
	}
	if tally[opt] != 0 {
		t.Fatalf("expected count 0 after toggle off, got %d", tally[opt])
	}
}

func TestCastVoteGuards(t *testing.T) {
	store := newMemPollStore()
	svc, _ := newTestPollService(store)
	ctx := context.Background()

	poll, err := svc.Create(ctx, "ch1", "alice", &model.CreatePollRequest{Question: "q", Options: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	opt := poll.Options[0].ID

	if _, err := svc.CastVote(ctx, poll.ID, "someone-elses-option", "bob"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign option, got %v", err)
	}
	if _, err := svc.CastVote(ctx, poll.ID, opt, "stranger"); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-member, got %v", err)
	}

	if err := svc.Close(ctx, poll.ID, "alice"); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := svc.CastVote(ctx, poll.ID, opt, "bob"); !errors.Is(err, model.ErrPollClosed) {
		t.Fatalf("expected ErrPollClosed after close, got %v", err)
	}
}

func TestCloseIsCreatorOnlyAndIdempotent(t *testing.T) {
	store := newMemPollStore()
	svc, hub := newTestPollService(store)
	ctx := context.Background()

	poll, err := svc.Create(ctx, "ch1", "alice", &model.CreatePollRequest{Question: "q", Options: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := svc.Close(ctx, poll.ID, "mods"); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-creator, got %v", err)
	}
	if err := svc.Close(ctx, poll.ID, "alice"); err != nil {
		t.Fatalf("creator close failed: %v", err)
	}
	if err := svc.Close(ctx, poll.ID, "alice"); err != nil {
		t.Fatalf("repeat close must be a no-op, got %v", err)
	}
	if got := len(hub.byType(model.EventPollClosed)); got != 1 {
		t.Fatalf("expected one closed event, got %d", got)
	}
}

func TestConcurrentSingleChoiceVotesLeaveOneRow(t *testing.T) {
	store := newMemPollStore()
	svc, _ := newTestPollService(store)
	ctx := context.Background()

	poll, err := svc.Create(ctx, "ch1", "alice", &model.CreatePollRequest{Question: "q", Options: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		opt := poll.Options[i%2].ID
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CastVote(ctx, poll.ID, opt, "bob"); err != nil {
				t.Errorf("concurrent vote failed: %v", err)
			}
		}()
	}
	wg.Wait()

	tally, err := svc.Tally(ctx, poll.ID)
	if err != nil {
		t.Fatalf("tally failed: %v", err)
	}
	total := 0
	for _, n := range tally {
		total += n
	}
	if total != 1 {
		t.Fatalf("single-choice voter must end with exactly one vote, got %d (%v)", total, tally)
	}
}
