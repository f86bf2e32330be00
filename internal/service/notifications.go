package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"superfilm-backend/internal/model"
)

// NotificationStore is the durable notification boundary.
type NotificationStore interface {
	Insert(ctx context.Context, n *model.Notification, dedupeWindow time.Duration) (inserted bool, err error)
	ListBefore(ctx context.Context, recipientID string, beforeID int64, limit int) ([]model.Notification, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, id int64, recipientID string) (marked bool, err error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}

// ClubSource supplies the collaborator state synthetic notifications are
// derived from. It has no native change feed; we poll it.
type ClubSource interface {
	AdminClubs(ctx context.Context, userID string) ([]string, error)
	PendingRequestCount(ctx context.Context, clubID string) (int, error)
}

const (
	notifDedupeWindow = 5 * time.Minute
	unreadCacheTTL    = 30 * time.Second
	maxFeedPage       = 50
)

// syntheticKey is the deterministic derived id for a club's pending-requests
// item; it deduplicates the item against itself across refreshes.
func syntheticKey(clubID string) string { return "pending-requests:" + clubID }

// NotificationService merges durable notifications with synthetic
// pending-request items into one feed per user, and owns all read/unread
// state. Synthetic items are reconstructed on each fetch, never persisted;
// dismissals are process-local and keyed to the pending count at dismissal
// time so a new request resurfaces the item.
type NotificationService struct {
	store NotificationStore
	clubs ClubSource
	cache CounterCache
	hub   Broadcaster
	feed  EventFeed

	mu        sync.Mutex
	dismissed map[string]map[string]int // user -> synthetic key -> count at dismissal
	interval  time.Duration
}

func NewNotificationService(store NotificationStore, clubs ClubSource, cache CounterCache, hub Broadcaster, feed EventFeed, interval time.Duration) *NotificationService {
	return &NotificationService{
		store:     store,
		clubs:     clubs,
		cache:     cache,
		hub:       hub,
		feed:      feed,
		dismissed: make(map[string]map[string]int),
		interval:  interval,
	}
}

// Record persists a durable notification from a domain event. Equivalent
// events inside the dedupe window collapse onto the original row, so retries
// never double-notify.
func (s *NotificationService) Record(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	if n.RecipientID == "" || n.Type == "" {
		return nil, fmt.Errorf("notification needs recipient and type: %w", model.ErrValidation)
	}

	inserted, err := s.store.Insert(ctx, n, notifDedupeWindow)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return n, nil
	}

	// The unread badge changed; drop the cached counter and let the next
	// read recompute.
	if err := s.cache.Delete(ctx, unreadKey(n.RecipientID)); err != nil {
		log.Printf("[notify] unread cache invalidate: %v", err)
	}

	count, _ := s.UnreadCount(ctx, n.RecipientID)
	data, merr := json.Marshal(model.NotificationEventData{Notification: *n, UnreadCount: count})
	if merr == nil {
		event := model.WSEvent{Type: model.EventNotificationCreated, UserID: n.RecipientID, Data: data}
		s.hub.Broadcast(event)
		if err := s.feed.Publish(ctx, event); err != nil {
			log.Printf("[notify] feed publish: %v", err)
		}
	}
	return n, nil
}

// ListFeed returns one page of the merged feed, newest first, deduplicated by
// item key. Synthetic derivation failure degrades to durable-only: the feed
// itself must still be served.
func (s *NotificationService) ListFeed(ctx context.Context, userID string, beforeID int64, pageSize int) ([]model.FeedItem, error) {
	if pageSize <= 0 || pageSize > maxFeedPage {
		pageSize = 20
	}

	durable, err := s.store.ListBefore(ctx, userID, beforeID, pageSize)
	if err != nil {
		return nil, err
	}

	items := make([]model.FeedItem, 0, len(durable)+4)
	seen := make(map[string]bool)
	for i := range durable {
		n := durable[i]
		key := "n:" + strconv.FormatInt(n.ID, 10)
		if seen[key] {
			continue
		}
		seen[key] = true
		items = append(items, model.FeedItem{
			Key:          key,
			Type:         n.Type,
			Title:        n.Title,
			Message:      n.Message,
			Link:         n.Link,
			CreatedAt:    n.CreatedAt,
			Read:         n.ReadAt != nil,
			Notification: &n,
		})
	}

	// Synthetics only belong on the first page; deeper pages are history.
	if beforeID == 0 {
		synthetics, err := s.syntheticsFor(ctx, userID)
		if err != nil {
			log.Printf("[notify] synthetic derivation for %s degraded: %v", userID, err)
		} else {
			for _, item := range synthetics {
				if !seen[item.Key] {
					seen[item.Key] = true
					items = append(items, item)
				}
			}
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

// UnreadCount is durable unread rows plus active synthetic items, clamped at
// zero, cached briefly.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	if count, err := s.cache.GetInt(ctx, unreadKey(userID)); err == nil {
		return count, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		log.Printf("[notify] unread cache read: %v", err)
	}

	count, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return 0, err
	}
	if synthetics, err := s.syntheticsFor(ctx, userID); err == nil {
		count += len(synthetics)
	}
	if count < 0 {
		count = 0
	}

	if err := s.cache.SetInt(ctx, unreadKey(userID), count, unreadCacheTTL); err != nil {
		log.Printf("[notify] unread cache write: %v", err)
	}
	return count, nil
}

// MarkRead handles both durable ids ("n:<id>" or bare int) and synthetic
// keys. Idempotent either way.
func (s *NotificationService) MarkRead(ctx context.Context, userID, key string) error {
	if id, err := strconv.ParseInt(strings.TrimPrefix(key, "n:"), 10, 64); err == nil {
		marked, err := s.store.MarkRead(ctx, id, userID)
		if err != nil {
			return err
		}
		if marked {
			if err := s.cache.DecrClamped(ctx, unreadKey(userID), 1); err != nil {
				log.Printf("[notify] unread cache decr: %v", err)
			}
		}
		return nil
	}
	return s.dismissSynthetic(ctx, userID, key)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	if _, err := s.store.MarkAllRead(ctx, userID); err != nil {
		return err
	}

	// Dismiss current synthetics at their current counts.
	if synthetics, err := s.syntheticsFor(ctx, userID); err == nil {
		for _, item := range synthetics {
			_ = s.dismissSynthetic(ctx, userID, item.Key)
		}
	}

	return s.cache.SetInt(ctx, unreadKey(userID), 0, unreadCacheTTL)
}

// Run periodically refreshes synthetic state for connected users and pushes
// badge updates. ctx cancellation stops the loop.
func (s *NotificationService) Run(ctx context.Context, connected func() []string) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, userID := range connected() {
				s.refreshBadge(ctx, userID)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *NotificationService) refreshBadge(ctx context.Context, userID string) {
	prev, prevErr := s.cache.GetInt(ctx, unreadKey(userID))
	if err := s.cache.Delete(ctx, unreadKey(userID)); err != nil {
		return
	}
	count, err := s.UnreadCount(ctx, userID)
	if err != nil {
		return
	}
	if prevErr == nil && prev == count {
		return
	}
	data, err := json.Marshal(model.NotificationEventData{UnreadCount: count})
	if err != nil {
		return
	}
	s.hub.Broadcast(model.WSEvent{Type: model.EventNotificationCreated, UserID: userID, Data: data})
}

// syntheticsFor reconstructs the user's active synthetic items from
// collaborator state: one pending-requests item per admin club with a
// non-zero pending count, minus dismissals taken at the same count.
func (s *NotificationService) syntheticsFor(ctx context.Context, userID string) ([]model.FeedItem, error) {
	clubs, err := s.clubs.AdminClubs(ctx, userID)
	if err != nil {
		return nil, err
	}

	var items []model.FeedItem
	now := time.Now()
	for _, clubID := range clubs {
		pending, err := s.clubs.PendingRequestCount(ctx, clubID)
		if err != nil {
			return nil, err
		}
		key := syntheticKey(clubID)
		if pending == 0 {
			// Condition resolved; the item disappears and any dismissal
			// bookkeeping goes with it.
			s.clearDismissal(userID, key)
			continue
		}
		if s.isDismissed(userID, key, pending) {
			continue
		}
		items = append(items, model.FeedItem{
			Key:       key,
			Synthetic: true,
			Type:      model.NotifPendingRequests,
			Title:     "Membership requests waiting",
			Message:   fmt.Sprintf("%d pending request(s) to review", pending),
			Link:      "/clubs/" + clubID + "/requests",
			ClubID:    clubID,
			CreatedAt: now,
		})
	}
	return items, nil
}

func (s *NotificationService) dismissSynthetic(ctx context.Context, userID, key string) error {
	clubID := strings.TrimPrefix(key, "pending-requests:")
	if clubID == key {
		return fmt.Errorf("unknown feed item key %q: %w", key, model.ErrNotFound)
	}
	pending, err := s.clubs.PendingRequestCount(ctx, clubID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.dismissed[userID] == nil {
		s.dismissed[userID] = make(map[string]int)
	}
	s.dismissed[userID][key] = pending
	s.mu.Unlock()

	return s.cache.DecrClamped(ctx, unreadKey(userID), 1)
}

func (s *NotificationService) isDismissed(userID, key string, pending int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	count, ok := s.dismissed[userID][key]
	return ok && count == pending
}

func (s *NotificationService) clearDismissal(userID, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.dismissed[userID]; m != nil {
		delete(m, key)
		if len(m) == 0 {
			delete(s.dismissed, userID)
		}
	}
}

func unreadKey(userID string) string { return "unread:" + userID }
