package service

import (
	"encoding/json"
	"log"
	"sync"

	"superfilm-backend/internal/model"
)

// Subscriber is one connected client. A subscriber holds any number of
// channel subscriptions multiplexed over its single send queue; the websocket
// handler drains Send into the connection.
type Subscriber struct {
	UserID     string
	SessionKey string
	Send       chan []byte

	mu       sync.Mutex
	channels map[string]bool
}

func NewSubscriber(userID, sessionKey string, buffer int) *Subscriber {
	return &Subscriber{
		UserID:     userID,
		SessionKey: sessionKey,
		Send:       make(chan []byte, buffer),
		channels:   make(map[string]bool),
	}
}

// Channels snapshots the subscriber's current channel subscriptions.
func (s *Subscriber) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.channels))
	for id := range s.channels {
		out = append(out, id)
	}
	return out
}

// Broadcaster is the producer-side view of the hub. Fan-out never surfaces
// delivery failures back to the producer.
type Broadcaster interface {
	Broadcast(event model.WSEvent)
}

// Hub fans out channel, presence and notification events to subscribers.
// Fan-out is fire-and-forget: a subscriber whose send queue is full has the
// event dropped and recovers by re-fetching history on reconnect. There is no
// replay buffer.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]bool
	byChannel   map[string]map[*Subscriber]bool
	byUser      map[string]map[*Subscriber]bool

	register   chan *Subscriber
	unregister chan *Subscriber
	subscribe  chan subscription
	broadcast  chan model.WSEvent
	done       chan struct{}
	stopped    chan struct{}
}

type subscription struct {
	sub       *Subscriber
	channelID string
	leave     bool
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]bool),
		byChannel:   make(map[string]map[*Subscriber]bool),
		byUser:      make(map[string]map[*Subscriber]bool),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		subscribe:   make(chan subscription),
		broadcast:   make(chan model.WSEvent, 256),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

// Run is the single broadcast loop; per-channel delivery order equals the
// order events enter this loop.
func (h *Hub) Run() {
	defer close(h.stopped)
	for {
		select {
		case sub := <-h.register:
			h.mu.Lock()
			h.subscribers[sub] = true
			if h.byUser[sub.UserID] == nil {
				h.byUser[sub.UserID] = make(map[*Subscriber]bool)
			}
			h.byUser[sub.UserID][sub] = true
			h.mu.Unlock()
			log.Printf("[hub] %s connected (total: %d)", sub.UserID, h.Count())

		case sub := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.subscribers[sub]; ok {
				h.detachLocked(sub)
				close(sub.Send)
			}
			h.mu.Unlock()

		case s := <-h.subscribe:
			h.mu.Lock()
			if h.subscribers[s.sub] {
				s.sub.mu.Lock()
				if s.leave {
					delete(s.sub.channels, s.channelID)
				} else {
					s.sub.channels[s.channelID] = true
				}
				s.sub.mu.Unlock()
				if s.leave {
					if subs := h.byChannel[s.channelID]; subs != nil {
						delete(subs, s.sub)
						if len(subs) == 0 {
							delete(h.byChannel, s.channelID)
						}
					}
				} else {
					if h.byChannel[s.channelID] == nil {
						h.byChannel[s.channelID] = make(map[*Subscriber]bool)
					}
					h.byChannel[s.channelID][s.sub] = true
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.deliver(event)

		case <-h.done:
			return
		}
	}
}

func (h *Hub) deliver(event model.WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[hub] drop unmarshalable event %s: %v", event.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var targets map[*Subscriber]bool
	switch {
	case event.UserID != "":
		targets = h.byUser[event.UserID]
	case event.ChannelID != "":
		targets = h.byChannel[event.ChannelID]
	default:
		targets = h.subscribers
	}

	for sub := range targets {
		select {
		case sub.Send <- data:
		default:
			// Slow subscriber: drop, it resyncs on reconnect.
		}
	}
}

func (h *Hub) detachLocked(sub *Subscriber) {
	delete(h.subscribers, sub)
	sub.mu.Lock()
	for channelID := range sub.channels {
		if subs := h.byChannel[channelID]; subs != nil {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(h.byChannel, channelID)
			}
		}
	}
	sub.mu.Unlock()
	if subs := h.byUser[sub.UserID]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.byUser, sub.UserID)
		}
	}
}

func (h *Hub) Register(sub *Subscriber)   { h.register <- sub }
func (h *Hub) Unregister(sub *Subscriber) { h.unregister <- sub }

func (h *Hub) Subscribe(sub *Subscriber, channelID string) {
	h.subscribe <- subscription{sub: sub, channelID: channelID}
}

func (h *Hub) Unsubscribe(sub *Subscriber, channelID string) {
	h.subscribe <- subscription{sub: sub, channelID: channelID, leave: true}
}

// Broadcast queues an event for fan-out. Never blocks the producer: if the
// hub's queue is saturated the event is dropped and clients recover via
// refetch.
func (h *Hub) Broadcast(event model.WSEvent) {
	select {
	case h.broadcast <- event:
	case <-h.done:
	default:
		log.Printf("[hub] broadcast queue full, dropped %s", event.Type)
	}
}

// ConnectedUsers lists user ids with at least one live connection.
func (h *Hub) ConnectedUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]string, 0, len(h.byUser))
	for userID := range h.byUser {
		users = append(users, userID)
	}
	return users
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Shutdown stops the loop and blocks until it has exited, even when Run has
// not been scheduled yet.
func (h *Hub) Shutdown() {
	close(h.done)
	<-h.stopped
}
