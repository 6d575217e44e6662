// Package service manages poll definitions and lifecycle. The vote pipeline
// and the aggregator only read from it.
package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"anonpoll/internal/poll/models"
	dErrors "anonpoll/pkg/domain-errors"
	"anonpoll/pkg/platform/sentinel"
	strutil "anonpoll/pkg/platform/strings"
	"anonpoll/pkg/requestcontext"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

type Store interface {
	Create(ctx context.Context, p *models.Poll) error
	Get(ctx context.Context, id string) (*models.Poll, error)
	Transition(ctx context.Context, id string, from, to models.State) error
}

// LifecycleListener is notified in-process after a poll closes. Durable
// delivery to other instances goes through the outbox.
type LifecycleListener interface {
	PollClosed(ctx context.Context, pollID string) error
}

type Service struct {
	store     Store
	listeners []LifecycleListener
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithLifecycleListener(l LifecycleListener) Option {
	return func(s *Service) { s.listeners = append(s.listeners, l) }
}

// Subscribe adds a listener after construction. Call it during wiring only.
func (s *Service) Subscribe(l LifecycleListener) {
	s.listeners = append(s.listeners, l)
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest defines a new poll. Polls start in draft.
type CreateRequest struct {
	ID       string
	Title    string
	Options  []models.Option
	Audience models.AudienceRule
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Poll, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}
	p := &models.Poll{
		ID:      req.ID,
		Title:   strings.TrimSpace(req.Title),
		State:   models.StateDraft,
		Options: req.Options,
		Audience: models.AudienceRule{
			Gender:  strings.TrimSpace(req.Audience.Gender),
			Regions: strutil.NormalizeCodes(req.Audience.Regions),
		},
	}
	if err := s.store.Create(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "poll already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to create poll")
	}
	s.logger.InfoContext(ctx, "poll created",
		"request_id", requestcontext.RequestID(ctx),
		"poll_id", p.ID,
		"options", len(p.Options),
	)
	return p, nil
}

// Get returns the poll or CodeNotFound.
func (s *Service) Get(ctx context.Context, id string) (*models.Poll, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "poll not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load poll")
	}
	return p, nil
}

// Transition moves a poll forward in its lifecycle.
func (s *Service) Transition(ctx context.Context, id string, to models.State) (*models.Poll, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(p.State, to) {
		return nil, dErrors.New(dErrors.CodeConflict, "poll cannot move from "+string(p.State)+" to "+string(to))
	}
	if err := s.store.Transition(ctx, id, p.State, to); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "poll not found")
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.New(dErrors.CodeConflict, "poll state changed concurrently")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to update poll")
	}
	s.logger.InfoContext(ctx, "poll state changed",
		"request_id", requestcontext.RequestID(ctx),
		"poll_id", id,
		"from", p.State,
		"to", to,
	)
	p.State = to

	if to.Closed() {
		for _, l := range s.listeners {
			if err := l.PollClosed(ctx, id); err != nil {
				s.logger.WarnContext(ctx, "poll close listener failed", "poll_id", id, "error", err)
			}
		}
	}
	return p, nil
}

func validateCreate(req CreateRequest) error {
	if !idPattern.MatchString(req.ID) {
		return dErrors.New(dErrors.CodeValidation, "id must be 1-64 characters of letters, digits, dash or underscore")
	}
	if strings.TrimSpace(req.Title) == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if len(req.Options) < 2 {
		return dErrors.New(dErrors.CodeValidation, "a poll needs at least two options")
	}
	seen := make(map[string]bool, len(req.Options))
	for _, o := range req.Options {
		if !idPattern.MatchString(o.ID) {
			return dErrors.New(dErrors.CodeValidation, "option ids must be 1-64 characters of letters, digits, dash or underscore")
		}
		if seen[o.ID] {
			return dErrors.New(dErrors.CodeValidation, "option ids must be unique")
		}
		seen[o.ID] = true
	}
	return nil
}
