// Package events publishes auth lifecycle events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/rideauth/internal/logging"
	"github.com/segmentio/kafka-go"
)

const (
	// batchTimeout bounds how long a partial batch waits before it is flushed.
	batchTimeout = 10 * time.Millisecond
	// publishTimeout bounds a single Publish, including the partition
	// metadata lookup the writer does before enqueueing.
	publishTimeout = 200 * time.Millisecond
)

const (
	VerificationRequested = "verification.requested"
	UserRegistered        = "user.registered"
	UserLoggedIn          = "user.logged_in"
	UserPasswordChanged   = "user.password_changed"
	UserPhoneChanged      = "user.phone_changed"
	SessionRefreshed      = "session.refreshed"
	SessionLoggedOut      = "session.logged_out"
)

// Event never carries codes, passwords or tokens.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// key partitions events of the same subject together.
func (e Event) key() string {
	if e.UserID != "" {
		return e.UserID
	}
	return e.Phone
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	w       MessageWriter
	timeout time.Duration
}

// NewKafkaPublisher writes to topic on brokers, balancing by key. The
// writer is asynchronous: Publish only enqueues, and delivery failures are
// reported to logger.
func NewKafkaPublisher(brokers []string, topic string, logger logging.Logger) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(newWriter(brokers, topic, logger))
}

func newWriter(brokers []string, topic string, logger logging.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		BatchTimeout:           batchTimeout,
		Completion:             completion(topic, logger),
	}
}

func completion(topic string, logger logging.Logger) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err != nil {
			logger.Warn(context.Background(), "events not delivered", "topic", topic, "count", len(msgs), "error", err)
		}
	}
}

func NewKafkaPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w, timeout: publishTimeout}
}

// Publish enqueues e. It is detached from the caller's cancellation and
// gives up after publishTimeout, so a slow broker costs a request at most
// that long.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(e.key()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
