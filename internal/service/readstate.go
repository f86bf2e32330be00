package service

import (
	"context"
	"errors"
	"time"

	"superfilm-backend/internal/model"
)

// ReadStateStore persists per-user per-channel watermarks.
type ReadStateStore interface {
	Upsert(ctx context.Context, userID, channelID string, at time.Time) error
	Get(ctx context.Context, userID, channelID string) (*model.ReadWatermark, error)
}

// messageCounter is the slice of the message store unread counting needs.
type messageCounter interface {
	CountAfter(ctx context.Context, channelID string, after time.Time) (int, error)
}

// ReadStateTracker owns the last-read watermark per user per channel. Unread
// message counts derive from the watermark, independent of notification rows,
// so read state reconciles across devices.
type ReadStateTracker struct {
	store    ReadStateStore
	messages messageCounter
	now      func() time.Time
}

func NewReadStateTracker(store ReadStateStore, messages messageCounter) *ReadStateTracker {
	return &ReadStateTracker{store: store, messages: messages, now: time.Now}
}

// MarkViewed advances the watermark to now. The store keeps it monotonic, so
// a stale device reporting late never moves it backwards.
func (t *ReadStateTracker) MarkViewed(ctx context.Context, userID, channelID string) error {
	return t.store.Upsert(ctx, userID, channelID, t.now())
}

// UnreadMessages counts messages newer than the watermark. A user who never
// viewed the channel has everything unread.
func (t *ReadStateTracker) UnreadMessages(ctx context.Context, userID, channelID string) (int, error) {
	w, err := t.store.Get(ctx, userID, channelID)
	if errors.Is(err, model.ErrNotFound) {
		return t.messages.CountAfter(ctx, channelID, time.Time{})
	}
	if err != nil {
		return 0, err
	}
	return t.messages.CountAfter(ctx, channelID, w.LastReadAt)
}
