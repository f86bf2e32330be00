package service

import (
	"encoding/json"
	"testing"
	"time"

	"superfilm-backend/internal/model"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Shutdown)
	return hub
}

func recvEvent(t *testing.T, sub *Subscriber) model.WSEvent {
	t.Helper()
	select {
	case data, ok := <-sub.Send:
		if !ok {
			t.Fatalf("send channel closed unexpectedly")
		}
		var event model.WSEvent
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("bad event payload: %v", err)
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
		return model.WSEvent{}
	}
}

func expectSilence(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case data := <-sub.Send:
		t.Fatalf("unexpected delivery: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubRoutesChannelEventsToSubscribersOnly(t *testing.T) {
	hub := startHub(t)

	inChannel := NewSubscriber("alice", "s1", 8)
	outside := NewSubscriber("bob", "s2", 8)
	hub.Register(inChannel)
	hub.Register(outside)
	hub.Subscribe(inChannel, "ch1")

	hub.Broadcast(model.WSEvent{Type: model.EventMessageCreated, ChannelID: "ch1"})

	event := recvEvent(t, inChannel)
	if event.Type != model.EventMessageCreated || event.ChannelID != "ch1" {
		t.Fatalf("wrong event delivered: %+v", event)
	}
	expectSilence(t, outside)
}

func TestHubRoutesUserEventsAcrossSessions(t *testing.T) {
	hub := startHub(t)

	phone := NewSubscriber("alice", "s1", 8)
	laptop := NewSubscriber("alice", "s2", 8)
	other := NewSubscriber("bob", "s3", 8)
	hub.Register(phone)
	hub.Register(laptop)
	hub.Register(other)

	hub.Broadcast(model.WSEvent{Type: model.EventNotificationCreated, UserID: "alice"})

	for _, sub := range []*Subscriber{phone, laptop} {
		if event := recvEvent(t, sub); event.UserID != "alice" {
			t.Fatalf("wrong recipient: %+v", event)
		}
	}
	expectSilence(t, other)
}

func TestHubPerChannelOrderingPreserved(t *testing.T) {
	hub := startHub(t)

	sub := NewSubscriber("alice", "s1", 64)
	hub.Register(sub)
	hub.Subscribe(sub, "ch1")

	for i := 0; i < 20; i++ {
		data, _ := json.Marshal(map[string]int{"seq": i})
		hub.Broadcast(model.WSEvent{Type: model.EventMessageCreated, ChannelID: "ch1", Data: data})
	}

	for i := 0; i < 20; i++ {
		event := recvEvent(t, sub)
		var payload struct {
			Seq int `json:"seq"`
		}
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		if payload.Seq != i {
			t.Fatalf("out of order delivery: want seq %d, got %d", i, payload.Seq)
		}
	}
}

func TestHubDropsForSlowSubscriberWithoutBlocking(t *testing.T) {
	hub := startHub(t)

	slow := NewSubscriber("alice", "s1", 1)
	fast := NewSubscriber("bob", "s2", 64)
	hub.Register(slow)
	hub.Register(fast)
	hub.Subscribe(slow, "ch1")
	hub.Subscribe(fast, "ch1")

	for i := 0; i < 5; i++ {
		hub.Broadcast(model.WSEvent{Type: model.EventMessageCreated, ChannelID: "ch1"})
	}

	// The fast subscriber observing all five proves the loop never stalled
	// behind the slow one.
	for i := 0; i < 5; i++ {
		recvEvent(t, fast)
	}
	if got := len(slow.Send); got != 1 {
		t.Fatalf("slow subscriber should hold exactly its buffer, got %d", got)
	}
}

func TestHubUnsubscribeStopsChannelDelivery(t *testing.T) {
	hub := startHub(t)

	sub := NewSubscriber("alice", "s1", 8)
	hub.Register(sub)
	hub.Subscribe(sub, "ch1")
	hub.Broadcast(model.WSEvent{Type: model.EventMessageCreated, ChannelID: "ch1"})
	recvEvent(t, sub)

	hub.Unsubscribe(sub, "ch1")
	hub.Broadcast(model.WSEvent{Type: model.EventMessageCreated, ChannelID: "ch1"})
	expectSilence(t, sub)
}

func TestHubUnregisterClosesSendAndDropsUser(t *testing.T) {
	hub := startHub(t)

	sub := NewSubscriber("alice", "s1", 8)
	hub.Register(sub)
	hub.Unregister(sub)

	select {
	case _, ok := <-sub.Send:
		if ok {
			t.Fatalf("expected closed channel, got a delivery")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("send channel never closed")
	}

	if users := hub.ConnectedUsers(); len(users) != 0 {
		t.Fatalf("expected no connected users, got %v", users)
	}
	if hub.Count() != 0 {
		t.Fatalf("expected zero subscribers, got %d", hub.Count())
	}
}

func TestHubShutdownWaitsForLoopExit(t *testing.T) {
	hub := NewHub()

	started := time.Now()
	go func() {
		// Delay the loop start so Shutdown observes a loop that has not
		// been scheduled yet.
		time.Sleep(20 * time.Millisecond)
		hub.Run()
	}()

	done := make(chan struct{})
	go func() {
		hub.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		if time.Since(started) < 20*time.Millisecond {
			t.Fatalf("shutdown returned before the loop ran")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("shutdown never completed")
	}
}
