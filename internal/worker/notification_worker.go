package worker

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/examprep/examprep-backend/internal/events"
	"github.com/examprep/examprep-backend/internal/metrics"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/rs/zerolog"
)

const (
	// MaxDeliveries bounds how often a failing event is redelivered.
	MaxDeliveries = 5
	RetryBackoff  = 2 * time.Second
)

// Subscriber yields domain events. *events.Bus implements it.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan *message.Message, error)
}

// Notifier renders and stores notifications for an event.
type Notifier interface {
	Render(ctx context.Context, e events.Event) ([]model.Notification, error)
	Save(ctx context.Context, ns []model.Notification) error
}

// NotificationWorker turns domain events into stored notifications.
type NotificationWorker struct {
	source     Subscriber
	notifier   Notifier
	backoff    time.Duration
	deliveries map[string]int
	log        zerolog.Logger
}

// NewNotificationWorker creates a new NotificationWorker.
func NewNotificationWorker(source Subscriber, notifier Notifier, log zerolog.Logger) *NotificationWorker {
	return &NotificationWorker{
		source:     source,
		notifier:   notifier,
		backoff:    RetryBackoff,
		deliveries: make(map[string]int),
		log:        log.With().Str("component", "notification_worker").Logger(),
	}
}

// Start consumes events until ctx is cancelled or the bus closes.
func (w *NotificationWorker) Start(ctx context.Context) error {
	msgs, err := w.source.Subscribe(ctx)
	if err != nil {
		return err
	}
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				w.log.Info().Msg("Event stream closed")
				return nil
			}
			w.handle(ctx, msg)
		}
	}
}

func (w *NotificationWorker) handle(ctx context.Context, msg *message.Message) {
	e, err := events.Decode(msg)
	if err != nil {
		// A malformed payload will never decode; drop it.
		w.log.Error().Err(err).Str("message_id", msg.UUID).Msg("Discarding malformed event")
		metrics.EventsHandled.WithLabelValues("unknown", "dropped").Inc()
		msg.Ack()
		return
	}

	ns, err := w.notifier.Render(ctx, e)
	if err == nil {
		err = w.flushSafe(ctx, ns)
	}
	if err == nil {
		delete(w.deliveries, msg.UUID)
		metrics.EventsHandled.WithLabelValues(e.Type, "ok").Inc()
		msg.Ack()
		return
	}

	w.deliveries[msg.UUID]++
	if w.deliveries[msg.UUID] >= MaxDeliveries || ctx.Err() != nil {
		w.log.Error().Err(err).Str("type", e.Type).Str("message_id", msg.UUID).
			Int("deliveries", w.deliveries[msg.UUID]).Msg("Giving up on event")
		delete(w.deliveries, msg.UUID)
		metrics.EventsHandled.WithLabelValues(e.Type, "dropped").Inc()
		msg.Ack()
		return
	}

	w.log.Warn().Err(err).Str("type", e.Type).Msg("Event handling failed, redelivering")
	metrics.EventsHandled.WithLabelValues(e.Type, "retry").Inc()
	select {
	case <-ctx.Done():
	case <-time.After(w.backoff):
	}
	msg.Nack()
}

// flushSafe stores the batch in one insert and falls back to row-by-row
// inserts so one bad row does not hold back the others.
func (w *NotificationWorker) flushSafe(ctx context.Context, batch []model.Notification) error {
	if len(batch) == 0 {
		return nil
	}
	err := w.notifier.Save(ctx, batch)
	if err == nil || len(batch) == 1 {
		return err
	}

	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
	var failed []model.Notification
	for _, n := range batch {
		if err := w.notifier.Save(ctx, []model.Notification{n}); err != nil {
			w.log.Error().Err(err).Int("user_id", n.UserID).Str("channel", n.Channel).Msg("Insert failed")
			failed = append(failed, n)
		}
	}
	if len(failed) == len(batch) {
		return err
	}
	// Rows that did go in are not retried.
	return nil
}
