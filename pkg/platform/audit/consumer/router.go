package consumer

import (
	"context"
	"log/slog"
	"sort"

	"anonpoll/internal/platform/kafka/consumer"
)

// Router dispatches consumed messages by topic so one consumer group can serve
// both security ingestion and poll lifecycle events.
type Router struct {
	routes map[string]consumer.Handler
	logger *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{routes: make(map[string]consumer.Handler), logger: logger}
}

// Register binds a handler to a topic. Empty topics are ignored.
func (r *Router) Register(topic string, h consumer.Handler) *Router {
	if topic != "" && h != nil {
		r.routes[topic] = h
	}
	return r
}

// Topics lists the registered topics in stable order.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.routes))
	for t := range r.routes {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Handle routes msg; unrouted topics are skipped so their offsets still commit.
func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	h, ok := r.routes[msg.Topic]
	if !ok {
		r.logger.WarnContext(ctx, "no handler for topic, skipping message",
			"topic", msg.Topic,
			"offset", msg.Offset,
		)
		return nil
	}
	return h.Handle(ctx, msg)
}
