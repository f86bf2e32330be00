// Package client implements the edge-side contract for optimistic sends:
// a submitted message renders immediately under a client-generated
// correlation id, then is replaced in place by the confirmed row or rolled
// back with the composer text intact.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"superfilm-backend/internal/model"

	"github.com/google/uuid"
)

const (
	maxSendAttempts = 3
	baseBackoff     = 200 * time.Millisecond

	// echoWindow bounds the author+timestamp+content fallback match for
	// confirmation events that arrive without a correlation token.
	echoWindow = 30 * time.Second
)

// Sender is the slice of the backend the reconciler submits through. The
// message service satisfies it directly; a remote adapter would wrap the
// HTTP call behind the same signature.
type Sender interface {
	Send(ctx context.Context, channelID, authorID string, req *model.SendMessageRequest) (*model.Message, error)
}

// Entry is one rendered list item: optimistic until Confirmed is set.
type Entry struct {
	CorrelationID string
	ChannelID     string
	AuthorID      string
	Body          string
	SubmittedAt   time.Time
	Confirmed     *model.Message
}

// SendFailure carries the composer text back to the caller after a rollback
// so the input is never silently dropped.
type SendFailure struct {
	ComposerText string
	Err          error
}

func (e *SendFailure) Error() string { return fmt.Sprintf("send failed: %v", e.Err) }
func (e *SendFailure) Unwrap() error { return e.Err }

// Reconciler tracks one connected client's optimistic entries.
type Reconciler struct {
	mu      sync.Mutex
	sender  Sender
	userID  string
	entries map[string]*Entry
	order   []string

	now   func() time.Time
	sleep func(time.Duration)
}

func NewReconciler(sender Sender, userID string) *Reconciler {
	return &Reconciler{
		sender:  sender,
		userID:  userID,
		entries: make(map[string]*Entry),
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// Submit renders an optimistic entry, then sends. Transient and timeout
// failures are retried with doubling backoff; any terminal failure removes
// the entry and returns a SendFailure holding the composer text.
func (r *Reconciler) Submit(ctx context.Context, channelID, body string) (*model.Message, error) {
	correlationID := uuid.NewString()
	req := model.SendMessageRequest{
		Kind:        string(model.KindText),
		Body:        body,
		ClientToken: correlationID,
	}

	r.mu.Lock()
	r.entries[correlationID] = &Entry{
		CorrelationID: correlationID,
		ChannelID:     channelID,
		AuthorID:      r.userID,
		Body:          body,
		SubmittedAt:   r.now(),
	}
	r.order = append(r.order, correlationID)
	r.mu.Unlock()

	msg, err := r.sendWithRetry(ctx, channelID, &req)
	if err != nil {
		r.remove(correlationID)
		return nil, &SendFailure{ComposerText: body, Err: err}
	}

	r.confirm(correlationID, msg)
	return msg, nil
}

func (r *Reconciler) sendWithRetry(ctx context.Context, channelID string, req *model.SendMessageRequest) (*model.Message, error) {
	backoff := baseBackoff
	var lastErr error
	for attempt := 0; attempt < maxSendAttempts; attempt++ {
		if attempt > 0 {
			r.sleep(backoff)
			backoff *= 2
		}
		msg, err := r.sender.Send(ctx, channelID, r.userID, req)
		if err == nil {
			return msg, nil
		}
		lastErr = err
		if !errors.Is(err, model.ErrTransient) && !errors.Is(err, model.ErrTimeout) {
			return nil, err
		}
	}
	return nil, lastErr
}

// ObserveEvent feeds a fan-out event through the dedupe check. It returns the
// confirmed message and true when the event is new to this client, or false
// when it is the echo of an entry already rendered optimistically (the entry
// is confirmed in place instead).
func (r *Reconciler) ObserveEvent(event model.WSEvent) (*model.Message, bool) {
	if event.Type != model.EventMessageCreated {
		return nil, false
	}
	var data model.MessageEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, false
	}
	msg := data.Message

	if msg.AuthorID != r.userID {
		return &msg, true
	}

	if data.ClientToken != "" {
		if r.confirm(data.ClientToken, &msg) {
			return &msg, false
		}
	}
	if id, ok := r.fallbackMatch(&msg); ok {
		r.confirm(id, &msg)
		return &msg, false
	}
	return &msg, true
}

// fallbackMatch finds a pending entry by author, content and a bounded
// submission window when no correlation token reached us.
func (r *Reconciler) fallbackMatch(msg *model.Message) (string, bool) {
	if msg.Body == nil {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		if e.Confirmed != nil || e.ChannelID != msg.ChannelID || e.Body != *msg.Body {
			continue
		}
		delta := msg.CreatedAt.Sub(e.SubmittedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= echoWindow {
			return id, true
		}
	}
	return "", false
}

// confirm replaces the optimistic entry in place. List order is preserved:
// the entry keeps its slot, only the payload changes.
func (r *Reconciler) confirm(correlationID string, msg *model.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[correlationID]
	if !ok {
		return false
	}
	e.Confirmed = msg
	return true
}

func (r *Reconciler) remove(correlationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, correlationID)
	for i, id := range r.order {
		if id == correlationID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Entries returns the render list in submission order.
func (r *Reconciler) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		if e, ok := r.entries[id]; ok {
			out = append(out, *e)
		}
	}
	return out
}

// Pending reports how many entries still await confirmation.
func (r *Reconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Confirmed == nil {
			n++
		}
	}
	return n
}
