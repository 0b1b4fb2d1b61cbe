// Package events carries domain events between services and background workers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/examprep/examprep-backend/internal/config"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Topic is the in-process topic every domain event is published to.
const Topic = "domain_events"

// Event is a domain event. Type is one of the config.EventKey values.
type Event struct {
	Type         string         `json:"type"`
	OccurredAt   time.Time      `json:"occurredAt"`
	UserID       int            `json:"userId"`
	ExamID       uuid.UUID      `json:"examId"`
	AttemptID    *uuid.UUID     `json:"attemptId,omitempty"`
	EnrollmentID *uuid.UUID     `json:"enrollmentId,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// Bus publishes events to in-process subscribers and, when Kafka brokers are
// configured, forwards them to an external topic.
type Bus struct {
	local   *gochannel.GoChannel
	forward message.Publisher
	topic   string
	log     zerolog.Logger
}

// NewBus builds the event bus. Kafka forwarding is enabled by cfg.KafkaBrokers.
func NewBus(cfg *config.Config, log zerolog.Logger) (*Bus, error) {
	log = log.With().Str("component", "event_bus").Logger()
	wmLog := NewLoggerAdapter(log)

	b := &Bus{
		local: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, wmLog),
		topic: cfg.EventsTopic,
		log:   log,
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub, err := kafka.NewPublisher(kafka.PublisherConfig{
			Brokers:   cfg.KafkaBrokers,
			Marshaler: kafka.DefaultMarshaler{},
		}, wmLog)
		if err != nil {
			_ = b.local.Close()
			return nil, fmt.Errorf("kafka publisher: %w", err)
		}
		b.forward = pub
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.EventsTopic).Msg("Kafka event forwarding enabled")
	}
	return b, nil
}

// NewLocalBus builds an in-process bus without external forwarding.
func NewLocalBus(log zerolog.Logger) *Bus {
	return &Bus{
		local: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, NewLoggerAdapter(log)),
		log:   log,
	}
}

// Publish delivers e to local subscribers. A forwarding failure is logged and
// does not fail the publish.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", e.Type)
	msg.SetContext(ctx)

	if err := b.local.Publish(Topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}

	if b.forward != nil {
		out := message.NewMessage(msg.UUID, payload)
		out.Metadata.Set("type", e.Type)
		if err := b.forward.Publish(b.topic, out); err != nil {
			b.log.Warn().Err(err).Str("type", e.Type).Msg("Failed to forward event")
		}
	}
	return nil
}

// Subscribe returns the stream of local events. Every message must be acked or nacked.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.local.Subscribe(ctx, Topic)
}

// Close shuts down the local pub/sub and the forwarder.
func (b *Bus) Close() error {
	err := b.local.Close()
	if b.forward != nil {
		if ferr := b.forward.Close(); ferr != nil && err == nil {
			err = ferr
		}
	}
	return err
}

// Decode parses a bus message back into an Event.
func Decode(msg *message.Message) (Event, error) {
	var e Event
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return Event{}, fmt.Errorf("decode event %s: %w", msg.UUID, err)
	}
	return e, nil
}
