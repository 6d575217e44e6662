package worker

import (
	"context"
	"log/slog"
	"time"

	"anonpoll/internal/platform/kafka/producer"
	"anonpoll/pkg/platform/audit/store/postgres"
)

// Outbox hands out unpublished rows under a lock.
type Outbox interface {
	ClaimUnpublished(ctx context.Context, limit int, publish func(ctx context.Context, entries []postgres.OutboxEntry) error) (int, error)
}

// Producer publishes records to Kafka.
type Producer interface {
	Publish(ctx context.Context, msgs ...producer.Message) error
}

// Relay moves outbox rows to Kafka. A failed publish leaves the rows
// unpublished and they are retried on the next tick.
type Relay struct {
	outbox    Outbox
	producer  Producer
	topic     string
	routes    map[string]string
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewRelay(outbox Outbox, producer Producer, topic string, interval time.Duration, batchSize int, logger *slog.Logger) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Relay{
		outbox:    outbox,
		producer:  producer,
		topic:     topic,
		routes:    map[string]string{},
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Route sends rows of aggregateType to topic instead of the default topic.
func (r *Relay) Route(aggregateType, topic string) *Relay {
	r.routes[aggregateType] = topic
	return r
}

func (r *Relay) topicFor(aggregateType string) string {
	if t, ok := r.routes[aggregateType]; ok {
		return t
	}
	return r.topic
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// Drain full batches before waiting for the next tick.
			for {
				n, err := r.RelayOnce(ctx)
				if err != nil {
					r.logger.WarnContext(ctx, "outbox relay failed", "error", err)
					break
				}
				if n < r.batchSize {
					break
				}
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many rows it moved.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	return r.outbox.ClaimUnpublished(ctx, r.batchSize, func(ctx context.Context, entries []postgres.OutboxEntry) error {
		msgs := make([]producer.Message, len(entries))
		for i, e := range entries {
			msgs[i] = producer.Message{
				Topic: r.topicFor(e.AggregateType),
				Key:   []byte(e.AggregateID),
				Value: e.Payload,
				Headers: map[string]string{
					"event_type": e.EventType,
					"outbox_id":  e.ID.String(),
				},
			}
		}
		return r.producer.Publish(ctx, msgs...)
	})
}
