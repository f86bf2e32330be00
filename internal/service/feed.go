package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"superfilm-backend/internal/model"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// EventFeed is the change-feed collaborator boundary. The fast path is a
// broker-backed feed shared by all instances; the degraded mode polls
// collaborator state at a bounded interval behind the same interface, costing
// latency but never correctness. A process-local feed serves single-node
// deployments and tests.
type EventFeed interface {
	Publish(ctx context.Context, event model.WSEvent) error
	Run(ctx context.Context, handle func(model.WSEvent))
	Close() error
}

// OriginFeed stamps every published event with this instance's identity so
// the consume side can skip events that were already delivered locally.
type OriginFeed struct {
	inner  EventFeed
	origin string
}

func NewOriginFeed(inner EventFeed, origin string) *OriginFeed {
	return &OriginFeed{inner: inner, origin: origin}
}

func (f *OriginFeed) Publish(ctx context.Context, event model.WSEvent) error {
	event.Origin = f.origin
	return f.inner.Publish(ctx, event)
}

func (f *OriginFeed) Run(ctx context.Context, handle func(model.WSEvent)) {
	f.inner.Run(ctx, func(event model.WSEvent) {
		if event.Origin == f.origin {
			return
		}
		handle(event)
	})
}

func (f *OriginFeed) Close() error { return f.inner.Close() }

// LocalFeed dispatches events within the process.
type LocalFeed struct {
	events chan model.WSEvent
}

func NewLocalFeed() *LocalFeed {
	return &LocalFeed{events: make(chan model.WSEvent, 256)}
}

func (f *LocalFeed) Publish(ctx context.Context, event model.WSEvent) error {
	select {
	case f.events <- event:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("local feed publish: %w", model.ErrTimeout)
	}
}

func (f *LocalFeed) Run(ctx context.Context, handle func(model.WSEvent)) {
	for {
		select {
		case event := <-f.events:
			handle(event)
		case <-ctx.Done():
			return
		}
	}
}

func (f *LocalFeed) Close() error { return nil }

// KafkaFeed fans events out across instances. Each instance consumes with a
// unique group id so every gateway sees every event (broadcast, not
// work-sharing).
type KafkaFeed struct {
	writer *kafka.Writer
	reader *kafka.Reader
}

func NewKafkaFeed(brokers []string, topic string) *KafkaFeed {
	return &KafkaFeed{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			Topic:       topic,
			GroupID:     "superfilm-gateway-" + uuid.NewString(),
			StartOffset: kafka.LastOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
		}),
	}
}

func (f *KafkaFeed) Publish(ctx context.Context, event model.WSEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := f.writer.WriteMessages(ctx, kafka.Message{Value: value, Time: time.Now()}); err != nil {
		return fmt.Errorf("kafka publish: %w", model.ErrTransient)
	}
	return nil
}

func (f *KafkaFeed) Run(ctx context.Context, handle func(model.WSEvent)) {
	for {
		m, err := f.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[feed] kafka read: %v", err)
			time.Sleep(time.Second)
			continue
		}
		var event model.WSEvent
		if err := json.Unmarshal(m.Value, &event); err != nil {
			log.Printf("[feed] drop malformed event: %v", err)
			continue
		}
		handle(event)
	}
}

func (f *KafkaFeed) Close() error {
	_ = f.reader.Close()
	return f.writer.Close()
}

// notificationSource is the slice of the notification store the polling feed
// needs: durable rows newer than a cursor.
type notificationSource interface {
	ListAfter(ctx context.Context, afterID int64, limit int) ([]model.Notification, error)
	MaxID(ctx context.Context) (int64, error)
}

// messageSource is the slice of the message store the polling feed needs.
type messageSource interface {
	ListAfter(ctx context.Context, afterID int64, limit int) ([]model.Message, error)
	MaxID(ctx context.Context) (int64, error)
}

// pollSource lists polls whose tally activity moved past a cursor.
type pollSource interface {
	ChangedSince(ctx context.Context, since time.Time, limit int) ([]model.PollChange, error)
	Tally(ctx context.Context, pollID string) (model.Tally, error)
}

const pollFeedBatch = 100

// PollFeed is the no-change-feed degraded mode: it re-reads the message, vote
// and notification tables on a bounded interval and synthesizes the same
// events the broker path carries for rows it has not seen. Delete transitions
// leave no new rows behind and surface on history refetch instead.
type PollFeed struct {
	notifications notificationSource
	messages      messageSource
	polls         pollSource
	interval      time.Duration
	now           func() time.Time

	primed      bool
	notifCursor int64
	msgCursor   int64
	voteCursor  time.Time
}

func NewPollFeed(notifications notificationSource, messages messageSource, polls pollSource, interval time.Duration) *PollFeed {
	return &PollFeed{
		notifications: notifications,
		messages:      messages,
		polls:         polls,
		interval:      interval,
		now:           time.Now,
	}
}

// Publish is a no-op: durable state is the feed, there is nothing to push.
func (f *PollFeed) Publish(ctx context.Context, event model.WSEvent) error { return nil }

func (f *PollFeed) Close() error { return nil }

func (f *PollFeed) Run(ctx context.Context, handle func(model.WSEvent)) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.poll(ctx, handle)
		case <-ctx.Done():
			return
		}
	}
}

func (f *PollFeed) poll(ctx context.Context, handle func(model.WSEvent)) {
	if !f.primed {
		// First cycle establishes the cursors; history is not replayed.
		notifMax, err := f.notifications.MaxID(ctx)
		if err != nil {
			log.Printf("[feed] poll cursor init: %v", err)
			return
		}
		msgMax, err := f.messages.MaxID(ctx)
		if err != nil {
			log.Printf("[feed] poll cursor init: %v", err)
			return
		}
		f.notifCursor = notifMax
		f.msgCursor = msgMax
		f.voteCursor = f.now()
		f.primed = true
		return
	}

	f.pollMessages(ctx, handle)
	f.pollVotes(ctx, handle)
	f.pollNotifications(ctx, handle)
}

func (f *PollFeed) pollMessages(ctx context.Context, handle func(model.WSEvent)) {
	rows, err := f.messages.ListAfter(ctx, f.msgCursor, pollFeedBatch)
	if err != nil {
		log.Printf("[feed] poll messages: %v", err)
		return
	}
	for _, m := range rows {
		if m.ID > f.msgCursor {
			f.msgCursor = m.ID
		}
		data, err := json.Marshal(model.MessageEventData{Message: m, ClientToken: m.ClientToken})
		if err != nil {
			continue
		}
		handle(model.WSEvent{
			Type:      model.EventMessageCreated,
			ChannelID: m.ChannelID,
			Data:      data,
		})
	}
}

func (f *PollFeed) pollVotes(ctx context.Context, handle func(model.WSEvent)) {
	changes, err := f.polls.ChangedSince(ctx, f.voteCursor, pollFeedBatch)
	if err != nil {
		log.Printf("[feed] poll votes: %v", err)
		return
	}
	for _, c := range changes {
		if c.ChangedAt.After(f.voteCursor) {
			f.voteCursor = c.ChangedAt
		}
		if c.Closed {
			// Votes cannot bump a closed poll, so the close itself is the
			// change inside this window.
			data, err := json.Marshal(struct {
				PollID string `json:"poll_id"`
			}{PollID: c.PollID})
			if err != nil {
				continue
			}
			handle(model.WSEvent{Type: model.EventPollClosed, ChannelID: c.ChannelID, Data: data})
			continue
		}
		tally, err := f.polls.Tally(ctx, c.PollID)
		if err != nil {
			log.Printf("[feed] poll tally %s: %v", c.PollID, err)
			continue
		}
		data, err := json.Marshal(model.VoteCastData{PollID: c.PollID, Tally: tally})
		if err != nil {
			continue
		}
		handle(model.WSEvent{Type: model.EventVoteCast, ChannelID: c.ChannelID, Data: data})
	}
}

func (f *PollFeed) pollNotifications(ctx context.Context, handle func(model.WSEvent)) {
	rows, err := f.notifications.ListAfter(ctx, f.notifCursor, pollFeedBatch)
	if err != nil {
		log.Printf("[feed] poll notifications: %v", err)
		return
	}
	for _, n := range rows {
		if n.ID > f.notifCursor {
			f.notifCursor = n.ID
		}
		data, err := json.Marshal(model.NotificationEventData{Notification: n})
		if err != nil {
			continue
		}
		handle(model.WSEvent{
			Type:   model.EventNotificationCreated,
			UserID: n.RecipientID,
			Data:   data,
		})
	}
}
