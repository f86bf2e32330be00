package service

import (
	"context"
	"sync"

	"superfilm-backend/internal/model"
)

// recordingHub captures broadcasts for assertions.
type recordingHub struct {
	mu     sync.Mutex
	events []model.WSEvent
}

func (h *recordingHub) Broadcast(event model.WSEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *recordingHub) recorded() []model.WSEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.WSEvent, len(h.events))
	copy(out, h.events)
	return out
}

func (h *recordingHub) byType(eventType string) []model.WSEvent {
	var out []model.WSEvent
	for _, e := range h.recorded() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// recordingFeed captures published events.
type recordingFeed struct {
	mu     sync.Mutex
	events []model.WSEvent
	err    error
}

func (f *recordingFeed) Publish(ctx context.Context, event model.WSEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *recordingFeed) Run(ctx context.Context, handle func(model.WSEvent)) {}
func (f *recordingFeed) Close() error                                        { return nil }

func (f *recordingFeed) published() []model.WSEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.WSEvent, len(f.events))
	copy(out, f.events)
	return out
}

// fakeRoles resolves club roles from a fixed map keyed by channel+user.
type fakeRoles struct {
	roles map[string]model.ClubRole
}

func (r *fakeRoles) RoleInChannel(ctx context.Context, channelID, userID string) (model.ClubRole, error) {
	role, ok := r.roles[channelID+"/"+userID]
	if !ok {
		return model.RoleNone, nil
	}
	return role, nil
}
