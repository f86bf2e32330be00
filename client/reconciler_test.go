package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"superfilm-backend/internal/model"
)

// scriptedSender fails a configured number of times before succeeding.
type scriptedSender struct {
	mu       sync.Mutex
	failures int
	failWith error
	nextID   int64
	calls    int
}

func (s *scriptedSender) Send(ctx context.Context, channelID, authorID string, req *model.SendMessageRequest) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return nil, s.failWith
	}
	s.nextID++
	body := req.Body
	return &model.Message{
		ID:          s.nextID,
		ChannelID:   channelID,
		AuthorID:    authorID,
		Body:        &body,
		Kind:        model.KindText,
		State:       model.StateActive,
		ClientToken: req.ClientToken,
		CreatedAt:   time.Now(),
	}, nil
}

func newTestReconciler(sender Sender) *Reconciler {
	r := NewReconciler(sender, "alice")
	r.sleep = func(time.Duration) {}
	return r
}

func createdEvent(t *testing.T, msg model.Message, clientToken string) model.WSEvent {
	t.Helper()
	data, err := json.Marshal(model.MessageEventData{Message: msg, ClientToken: clientToken})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return model.WSEvent{Type: model.EventMessageCreated, ChannelID: msg.ChannelID, Data: data}
}

func TestSubmitConfirmsInPlace(t *testing.T) {
	sender := &scriptedSender{}
	r := newTestReconciler(sender)

	msg, err := r.Submit(context.Background(), "ch1", "first post")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	entries := r.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Confirmed == nil || e.Confirmed.ID != msg.ID {
		t.Fatalf("entry not confirmed in place: %+v", e)
	}
	if r.Pending() != 0 {
		t.Fatalf("expected no pending entries, got %d", r.Pending())
	}
}

func TestSubmitRollbackReturnsComposerText(t *testing.T) {
	sender := &scriptedSender{failures: 99, failWith: fmt.Errorf("bad input: %w", model.ErrValidation)}
	r := newTestReconciler(sender)

	_, err := r.Submit(context.Background(), "ch1", "my precious draft")
	if err == nil {
		t.Fatalf("expected failure")
	}
	var failure *SendFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected SendFailure, got %T", err)
	}
	if failure.ComposerText != "my precious draft" {
		t.Fatalf("composer text lost: %q", failure.ComposerText)
	}
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("cause not preserved: %v", err)
	}
	if len(r.Entries()) != 0 {
		t.Fatalf("rolled-back entry still rendered: %+v", r.Entries())
	}
	if sender.calls != 1 {
		t.Fatalf("validation failures must not be retried, got %d calls", sender.calls)
	}
}

func TestSubmitRetriesTransientFailures(t *testing.T) {
	sender := &scriptedSender{failures: 2, failWith: fmt.Errorf("flaky: %w", model.ErrTransient)}
	r := newTestReconciler(sender)

	msg, err := r.Submit(context.Background(), "ch1", "eventually")
	if err != nil {
		t.Fatalf("submit should succeed on the third attempt: %v", err)
	}
	if msg == nil || sender.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", sender.calls)
	}
}

func TestSubmitGivesUpAfterBoundedRetries(t *testing.T) {
	sender := &scriptedSender{failures: 99, failWith: fmt.Errorf("down: %w", model.ErrTimeout)}
	r := newTestReconciler(sender)

	_, err := r.Submit(context.Background(), "ch1", "never lands")
	if err == nil {
		t.Fatalf("expected failure after bounded retries")
	}
	if sender.calls != maxSendAttempts {
		t.Fatalf("expected %d attempts, got %d", maxSendAttempts, sender.calls)
	}
	if len(r.Entries()) != 0 {
		t.Fatalf("entry must be rolled back after giving up")
	}
}

func TestObserveEventDedupesOwnEchoByCorrelationID(t *testing.T) {
	sender := &scriptedSender{}
	r := newTestReconciler(sender)

	msg, err := r.Submit(context.Background(), "ch1", "hello")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	_, render := r.ObserveEvent(createdEvent(t, *msg, msg.ClientToken))
	if render {
		t.Fatalf("own echo must not render twice")
	}
}

// gateSender blocks every send until released, keeping entries pending.
type gateSender struct {
	release chan struct{}
	inner   scriptedSender
}

func (g *gateSender) Send(ctx context.Context, channelID, authorID string, req *model.SendMessageRequest) (*model.Message, error) {
	<-g.release
	return g.inner.Send(ctx, channelID, authorID, req)
}

func TestObserveEventDedupesByFallbackMatch(t *testing.T) {
	gate := &gateSender{release: make(chan struct{})}
	r := newTestReconciler(gate)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Submit(context.Background(), "ch1", "crossing wires")
	}()
	for r.Pending() == 0 {
		time.Sleep(time.Millisecond)
	}

	// The echo arrives stripped of its correlation token while the HTTP
	// confirmation is still in flight.
	body := "crossing wires"
	echo := model.Message{ID: 9, ChannelID: "ch1", AuthorID: "alice", Body: &body, CreatedAt: time.Now()}
	_, render := r.ObserveEvent(createdEvent(t, echo, ""))
	if render {
		t.Fatalf("fallback match must absorb the echo")
	}

	// A different author's identical message still renders.
	other := echo
	other.AuthorID = "bob"
	_, render = r.ObserveEvent(createdEvent(t, other, ""))
	if !render {
		t.Fatalf("another author's message must render")
	}

	close(gate.release)
	<-done
}

func TestObserveEventRendersUnmatchedOwnMessage(t *testing.T) {
	r := newTestReconciler(&scriptedSender{})

	// Own message from another device: no local optimistic entry.
	body := "sent from my phone"
	msg := model.Message{ID: 4, ChannelID: "ch1", AuthorID: "alice", Body: &body, ClientToken: "other-device-token", CreatedAt: time.Now()}
	rendered, render := r.ObserveEvent(createdEvent(t, msg, "other-device-token"))
	if !render || rendered == nil {
		t.Fatalf("unmatched own message must render")
	}
}
