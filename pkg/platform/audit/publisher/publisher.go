package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	audit "anonpoll/pkg/platform/audit"
	"anonpoll/pkg/requestcontext"
)

// Publisher emits audit events to a store, synchronously by default.
// With WithAsyncBuffer events are queued and written by a background goroutine;
// when the queue is full the event is dropped and logged rather than blocking
// the request path.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	timeout time.Duration

	queue   chan audit.Event
	wg      sync.WaitGroup
	closeMu sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous emission with the given queue size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.queue = make(chan audit.Event, size)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithTimeout bounds each store write.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		p.timeout = d
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:   store,
		logger:  slog.New(slog.DiscardHandler),
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.queue != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an event. Request id and client IP are taken from ctx when unset.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if p == nil || p.store == nil {
		return nil
	}
	event.Normalize(requestcontext.Now(ctx))
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.IP == "" && event.Category == audit.CategorySecurity {
		event.IP = requestcontext.ClientIP(ctx)
	}

	if p.queue != nil {
		select {
		case p.queue <- event:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
			p.logger.WarnContext(ctx, "audit buffer full, dropping event",
				"action", event.Action,
				"request_id", event.RequestID,
			)
			return nil
		}
	}
	return p.write(ctx, event)
}

func (p *Publisher) write(ctx context.Context, event audit.Event) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.store.Append(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "failed to append audit event",
			"action", event.Action,
			"request_id", event.RequestID,
			"error", err,
		)
		return err
	}
	return nil
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.queue {
		_ = p.write(context.Background(), event)
	}
}

// Close stops the async worker after draining queued events.
func (p *Publisher) Close() {
	if p == nil || p.queue == nil {
		return
	}
	p.closeMu.Do(func() {
		close(p.queue)
		p.wg.Wait()
	})
}
