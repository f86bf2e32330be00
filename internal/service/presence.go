package service

import (
	"encoding/json"
	"sync"
	"time"

	"superfilm-backend/internal/model"
)

// PresenceTracker keeps the per-channel set of live sessions in process
// memory. A session stays present while heartbeats arrive within the liveness
// window; the sweep loop expires the rest. Nothing here is ever persisted.
type PresenceTracker struct {
	mu       sync.Mutex
	channels map[string]map[string]time.Time // channel -> session key -> last beat

	window time.Duration
	sweep  time.Duration
	hub    Broadcaster
	now    func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

func NewPresenceTracker(hub Broadcaster, window, sweep time.Duration) *PresenceTracker {
	return &PresenceTracker{
		channels: make(map[string]map[string]time.Time),
		window:   window,
		sweep:    sweep,
		hub:      hub,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

func (p *PresenceTracker) Join(channelID, sessionKey string) {
	p.mu.Lock()
	sessions := p.channels[channelID]
	if sessions == nil {
		sessions = make(map[string]time.Time)
		p.channels[channelID] = sessions
	}
	_, existed := sessions[sessionKey]
	sessions[sessionKey] = p.now()
	count := len(sessions)
	p.mu.Unlock()

	if !existed {
		p.announce(channelID, count)
	}
}

// Heartbeat refreshes a session's liveness. An unknown session (expired or
// never joined) is re-admitted, which covers clients that heartbeat across a
// sweep.
func (p *PresenceTracker) Heartbeat(channelID, sessionKey string) {
	p.Join(channelID, sessionKey)
}

func (p *PresenceTracker) Leave(channelID, sessionKey string) {
	p.mu.Lock()
	sessions := p.channels[channelID]
	_, existed := sessions[sessionKey]
	if existed {
		delete(sessions, sessionKey)
		if len(sessions) == 0 {
			delete(p.channels, channelID)
		}
	}
	count := len(sessions)
	p.mu.Unlock()

	if existed {
		p.announce(channelID, count)
	}
}

func (p *PresenceTracker) Count(channelID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.channels[channelID])
}

// Run sweeps expired sessions until Stop.
func (p *PresenceTracker) Run() {
	ticker := time.NewTicker(p.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sweepExpired()
		case <-p.done:
			return
		}
	}
}

func (p *PresenceTracker) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
}

// sweepExpired drops sessions whose last heartbeat is older than the window
// and announces only channels whose count actually changed.
func (p *PresenceTracker) sweepExpired() {
	cutoff := p.now().Add(-p.window)
	changed := make(map[string]int)

	p.mu.Lock()
	for channelID, sessions := range p.channels {
		before := len(sessions)
		for key, last := range sessions {
			if last.Before(cutoff) {
				delete(sessions, key)
			}
		}
		if len(sessions) != before {
			changed[channelID] = len(sessions)
			if len(sessions) == 0 {
				delete(p.channels, channelID)
			}
		}
	}
	p.mu.Unlock()

	for channelID, count := range changed {
		p.announce(channelID, count)
	}
}

func (p *PresenceTracker) announce(channelID string, count int) {
	data, _ := json.Marshal(model.PresenceData{Count: count})
	p.hub.Broadcast(model.WSEvent{
		Type:      model.EventPresenceChanged,
		ChannelID: channelID,
		Data:      data,
	})
}
