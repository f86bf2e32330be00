package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"superfilm-backend/internal/model"
)

// MessageStore is the durable message log boundary.
type MessageStore interface {
	Insert(ctx context.Context, m *model.Message) (inserted bool, err error)
	GetByID(ctx context.Context, id int64) (*model.Message, error)
	SoftDelete(ctx context.Context, id int64) (m *model.Message, transitioned bool, err error)
	HardDelete(ctx context.Context, id int64) (removed bool, err error)
	ListBefore(ctx context.Context, channelID string, beforeID int64, limit int) ([]model.Message, error)
}

// RoleSource is the authorization collaborator: club roles resolved at call
// time, never cached.
type RoleSource interface {
	RoleInChannel(ctx context.Context, channelID, userID string) (model.ClubRole, error)
}

// ImageStore is the object-storage collaborator. Deletion is best effort.
type ImageStore interface {
	Delete(ctx context.Context, url string) error
}

// ReportSink is the moderation-report collaborator.
type ReportSink interface {
	Report(ctx context.Context, messageID int64, reporterID, reason string) error
}

// ContentPolicy is the authoritative content check applied at the append
// boundary. Clients may pre-filter for latency; this check is the one that
// counts.
type ContentPolicy interface {
	Check(body string) error
}

// BlocklistPolicy rejects bodies containing blocked terms.
type BlocklistPolicy struct {
	terms []string
}

func NewBlocklistPolicy(terms []string) *BlocklistPolicy {
	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}
	return &BlocklistPolicy{terms: lowered}
}

func (p *BlocklistPolicy) Check(body string) error {
	lowered := strings.ToLower(body)
	for _, term := range p.terms {
		if strings.Contains(lowered, term) {
			return fmt.Errorf("message contains blocked content: %w", model.ErrValidation)
		}
	}
	return nil
}

const maxHistoryPage = 100

// MessageService is the message store and its moderation gate: the sole
// writer of message rows and the sole authority for delete transitions.
type MessageService struct {
	store   MessageStore
	roles   RoleSource
	images  ImageStore
	reports ReportSink
	policy  ContentPolicy
	hub     Broadcaster
	feed    EventFeed
}

func NewMessageService(store MessageStore, roles RoleSource, images ImageStore, reports ReportSink, policy ContentPolicy, hub Broadcaster, feed EventFeed) *MessageService {
	return &MessageService{store: store, roles: roles, images: images, reports: reports, policy: policy, hub: hub, feed: feed}
}

// Send validates, appends and fans out a new message. The server-assigned
// (created_at, id) pair is the sole ordering key. Retries carrying the same
// client token return the original message without re-appending or
// re-broadcasting.
func (s *MessageService) Send(ctx context.Context, channelID, authorID string, req *model.SendMessageRequest) (*model.Message, error) {
	role, err := s.roles.RoleInChannel(ctx, channelID, authorID)
	if err != nil {
		return nil, err
	}
	if role == model.RoleNone {
		return nil, fmt.Errorf("not a club member: %w", model.ErrForbidden)
	}

	kind := model.MessageKind(req.Kind)
	if kind == "" {
		kind = model.KindText
	}
	body := strings.TrimSpace(req.Body)

	switch kind {
	case model.KindText:
		if body == "" && req.ImageURL == "" {
			return nil, fmt.Errorf("text message needs a body or an image: %w", model.ErrValidation)
		}
	case model.KindPoll:
		if req.PollID == "" {
			return nil, fmt.Errorf("poll message needs a poll reference: %w", model.ErrValidation)
		}
	default:
		return nil, fmt.Errorf("unknown message kind %q: %w", req.Kind, model.ErrValidation)
	}

	if body != "" {
		if err := s.policy.Check(body); err != nil {
			return nil, err
		}
	}

	m := &model.Message{
		ChannelID:   channelID,
		AuthorID:    authorID,
		Kind:        kind,
		State:       model.StateActive,
		ClientToken: req.ClientToken,
	}
	if body != "" {
		m.Body = &body
	}
	if req.ImageURL != "" {
		m.ImageURL = &req.ImageURL
	}
	if req.PollID != "" {
		m.PollID = &req.PollID
	}

	inserted, err := s.store.Insert(ctx, m)
	if err != nil {
		return nil, err
	}
	if inserted {
		s.emit(ctx, model.EventMessageCreated, m)
	}
	return m, nil
}

// SoftDelete tombstones a message. Allowed for the author and for channel
// admins; a second call on an already-tombstoned message is a no-op that
// returns the current state.
func (s *MessageService) SoftDelete(ctx context.Context, messageID int64, actorID string) (*model.Message, error) {
	m, err := s.store.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if m.AuthorID != actorID {
		role, err := s.roles.RoleInChannel(ctx, m.ChannelID, actorID)
		if err != nil {
			return nil, err
		}
		if role != model.RoleAdmin {
			return nil, fmt.Errorf("only the author or a club admin can delete: %w", model.ErrForbidden)
		}
	}

	m, transitioned, err := s.store.SoftDelete(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if transitioned {
		s.emit(ctx, model.EventMessageUpdated, m)
	}
	return m, nil
}

// HardDelete physically removes a message. Admin only, and only once the
// message is already soft-deleted. Any attached image is deleted from object
// storage first, best effort.
func (s *MessageService) HardDelete(ctx context.Context, messageID int64, actorID string) error {
	m, err := s.store.GetByID(ctx, messageID)
	if err != nil {
		return err
	}

	role, err := s.roles.RoleInChannel(ctx, m.ChannelID, actorID)
	if err != nil {
		return err
	}
	if role != model.RoleAdmin {
		return fmt.Errorf("hard delete requires a club admin: %w", model.ErrForbidden)
	}
	if m.State != model.StateSoftDeleted {
		return fmt.Errorf("message must be soft-deleted before hard delete: %w", model.ErrValidation)
	}

	if m.ImageURL != nil {
		if err := s.images.Delete(ctx, *m.ImageURL); err != nil {
			log.Printf("[chat] image delete for message %d failed: %v", messageID, err)
		}
	}

	removed, err := s.store.HardDelete(ctx, messageID)
	if err != nil {
		return err
	}
	if !removed {
		// Lost the race to a concurrent hard delete; same outcome.
		return nil
	}

	data, _ := json.Marshal(model.MessageRemovedData{MessageID: messageID})
	event := model.WSEvent{Type: model.EventMessageRemoved, ChannelID: m.ChannelID, Data: data}
	s.hub.Broadcast(event)
	s.publish(ctx, event)
	return nil
}

// History returns up to limit messages older than beforeID in chronological
// order; this is the reconnect/hydration path (no event replay).
func (s *MessageService) History(ctx context.Context, channelID, userID string, beforeID int64, limit int) ([]model.Message, error) {
	role, err := s.roles.RoleInChannel(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if role == model.RoleNone {
		return nil, fmt.Errorf("not a club member: %w", model.ErrForbidden)
	}

	if limit <= 0 || limit > maxHistoryPage {
		limit = 50
	}
	msgs, err := s.store.ListBefore(ctx, channelID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}

// Report forwards a message report to the moderation-report backend.
func (s *MessageService) Report(ctx context.Context, messageID int64, reporterID, reason string) error {
	if _, err := s.store.GetByID(ctx, messageID); err != nil {
		return err
	}
	return s.reports.Report(ctx, messageID, reporterID, reason)
}

func (s *MessageService) emit(ctx context.Context, eventType string, m *model.Message) {
	data, err := json.Marshal(model.MessageEventData{Message: *m, ClientToken: m.ClientToken})
	if err != nil {
		return
	}
	event := model.WSEvent{Type: eventType, ChannelID: m.ChannelID, Data: data}
	s.hub.Broadcast(event)
	s.publish(ctx, event)
}

func (s *MessageService) publish(ctx context.Context, event model.WSEvent) {
	if err := s.feed.Publish(ctx, event); err != nil {
		log.Printf("[chat] feed publish %s: %v", event.Type, err)
	}
}
