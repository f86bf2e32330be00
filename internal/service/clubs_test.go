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

// memClubStore backs the join-request flow.
type memClubStore struct {
	mu       sync.Mutex
	roles    map[string]model.ClubRole // club/user
	requests map[string]*model.JoinRequest
	nextID   int
}

func newMemClubStore() *memClubStore {
	return &memClubStore{
		roles:    make(map[string]model.ClubRole),
		requests: make(map[string]*model.JoinRequest),
	}
}

func (s *memClubStore) Role(ctx context.Context, clubID, userID string) (model.ClubRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roles[clubID+"/"+userID], nil
}

func (s *memClubStore) CreateJoinRequest(ctx context.Context, clubID, userID, message string) (*model.JoinRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, req := range s.requests {
		if req.ClubID == clubID && req.UserID == userID && req.Status == model.RequestPending {
			req.Message = message
			cp := *req
			return &cp, nil
		}
	}
	s.nextID++
	req := &model.JoinRequest{
		ID:        fmt.Sprintf("req-%d", s.nextID),
		ClubID:    clubID,
		UserID:    userID,
		Message:   message,
		Status:    model.RequestPending,
		CreatedAt: time.Now(),
	}
	s.requests[req.ID] = req
	cp := *req
	return &cp, nil
}

func (s *memClubStore) RespondJoinRequest(ctx context.Context, requestID string, accept bool) (*model.JoinRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok || req.Status != model.RequestPending {
		return nil, fmt.Errorf("pending request %s: %w", requestID, model.ErrNotFound)
	}
	if accept {
		req.Status = model.RequestAccepted
		s.roles[req.ClubID+"/"+req.UserID] = model.RoleMember
	} else {
		req.Status = model.RequestDeclined
	}
	cp := *req
	return &cp, nil
}

func newTestClubService() (*ClubService, *memClubStore, *memNotificationStore) {
	store := newMemClubStore()
	notifStore := &memNotificationStore{}
	notifications := NewNotificationService(notifStore, noClubs(), NewMemoryCache(), &recordingHub{}, &recordingFeed{}, time.Minute)
	return NewClubService(store, notifications), store, notifStore
}

func TestRequestJoinRejectsExistingMembers(t *testing.T) {
	svc, store, _ := newTestClubService()
	store.roles["club1/alice"] = model.RoleMember

	if _, err := svc.RequestJoin(context.Background(), "club1", "alice", "hi"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation for existing member, got %v", err)
	}
}

func TestRequestJoinRefreshesPendingRequest(t *testing.T) {
	svc, _, _ := newTestClubService()
	ctx := context.Background()

	first, err := svc.RequestJoin(ctx, "club1", "alice", "please")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	second, err := svc.RequestJoin(ctx, "club1", "alice", "please again")
	if err != nil {
		t.Fatalf("repeat request failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("repeat request created a second pending row: %s vs %s", second.ID, first.ID)
	}
	if second.Message != "please again" {
		t.Fatalf("repeat request should refresh the message, got %q", second.Message)
	}
}

func TestRespondAcceptGrantsMembershipAndNotifies(t *testing.T) {
	svc, store, notifStore := newTestClubService()
	store.roles["club1/admin"] = model.RoleAdmin
	ctx := context.Background()

	req, err := svc.RequestJoin(ctx, "club1", "alice", "hi")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if _, err := svc.Respond(ctx, "club1", req.ID, "alice", true); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-admin, got %v", err)
	}

	settled, err := svc.Respond(ctx, "club1", req.ID, "admin", true)
	if err != nil {
		t.Fatalf("respond failed: %v", err)
	}
	if settled.Status != model.RequestAccepted {
		t.Fatalf("expected accepted, got %s", settled.Status)
	}
	if role, _ := store.Role(ctx, "club1", "alice"); role != model.RoleMember {
		t.Fatalf("accept must grant membership, got role %q", role)
	}

	rows, err := notifStore.ListBefore(ctx, "alice", 0, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Type != model.NotifMembershipAccepted {
		t.Fatalf("expected one membership_accepted notification, got %+v", rows)
	}

	// The request is settled: a second decision hits nothing.
	if _, err := svc.Respond(ctx, "club1", req.ID, "admin", false); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for settled request, got %v", err)
	}
}

func TestRespondDeclineNotifiesWithoutMembership(t *testing.T) {
	svc, store, notifStore := newTestClubService()
	store.roles["club1/admin"] = model.RoleAdmin
	ctx := context.Background()

	req, err := svc.RequestJoin(ctx, "club1", "bob", "hi")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if _, err := svc.Respond(ctx, "club1", req.ID, "admin", false); err != nil {
		t.Fatalf("respond failed: %v", err)
	}
	if role, _ := store.Role(ctx, "club1", "bob"); role != model.RoleNone {
		t.Fatalf("decline must not grant membership, got %q", role)
	}
	rows, _ := notifStore.ListBefore(ctx, "bob", 0, 10)
	if len(rows) != 1 || rows[0].Type != model.NotifMembershipDeclined {
		t.Fatalf("expected membership_declined notification, got %+v", rows)
	}
}
