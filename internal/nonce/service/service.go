// Package service implements the Nonce Authority: single-use tokens scoped
// by purpose whose consumption is one atomic check-and-delete.
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"time"

	"anonpoll/internal/nonce/metrics"
	"anonpoll/internal/nonce/models"
	"anonpoll/internal/nonce/store"
	dErrors "anonpoll/pkg/domain-errors"
	"anonpoll/pkg/requestcontext"
)

// tokenBytes gives 256 bits of entropy.
const tokenBytes = 32

// Store persists nonce existence. Consume must be indivisible.
type Store interface {
	Put(ctx context.Context, key string, ttl time.Duration) error
	Consume(ctx context.Context, key string) (bool, error)
}

type Service struct {
	store   Store
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	random  io.Reader
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithStoreTimeout bounds every store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRandom replaces the entropy source. Tests only.
func WithRandom(r io.Reader) Option {
	return func(s *Service) { s.random = r }
}

// StoreTimeout is the bound applied to each store call.
func (s *Service) StoreTimeout() time.Duration {
	return s.timeout
}

func New(st Store, ttl time.Duration, opts ...Option) *Service {
	s := &Service{
		store:   st,
		ttl:     ttl,
		timeout: 2 * time.Second,
		logger:  slog.New(slog.DiscardHandler),
		random:  rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate issues a fresh token for purpose.
func (s *Service) Generate(ctx context.Context, purpose models.Purpose) (models.Nonce, error) {
	if _, err := models.ParsePurpose(string(purpose)); err != nil {
		return models.Nonce{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// A collision on 256 random bits means the entropy source is broken; one
	// retry distinguishes a fluke from a stuck reader.
	for attempt := 0; attempt < 2; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return models.Nonce{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate nonce")
		}
		err = s.store.Put(ctx, models.Key(purpose, token), s.ttl)
		if errors.Is(err, store.ErrCollision) {
			continue
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to store nonce",
				"request_id", requestcontext.RequestID(ctx),
				"purpose", purpose,
				"error", err,
			)
			return models.Nonce{}, storageError(ctx, err)
		}
		s.metrics.IncIssued(string(purpose))
		return models.Nonce{
			Token:     token,
			Purpose:   purpose,
			ExpiresAt: requestcontext.Now(ctx).Add(s.ttl),
		}, nil
	}
	return models.Nonce{}, dErrors.New(dErrors.CodeInternal, "nonce collision")
}

// VerifyAndConsume returns true iff token existed under purpose and this
// call removed it. Unknown, expired and reused tokens are a plain false.
func (s *Service) VerifyAndConsume(ctx context.Context, token string, purpose models.Purpose) (bool, error) {
	start := time.Now()
	if !wellFormed(token) {
		s.metrics.ObserveConsume(string(purpose), "rejected", time.Since(start))
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.store.Consume(ctx, models.Key(purpose, token))
	if err != nil {
		s.metrics.ObserveConsume(string(purpose), "error", time.Since(start))
		s.logger.ErrorContext(ctx, "failed to consume nonce",
			"request_id", requestcontext.RequestID(ctx),
			"purpose", purpose,
			"error", err,
		)
		return false, storageError(ctx, err)
	}
	result := "ok"
	if !ok {
		result = "rejected"
	}
	s.metrics.ObserveConsume(string(purpose), result, time.Since(start))
	return ok, nil
}

func (s *Service) newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := io.ReadFull(s.random, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// wellFormed keeps arbitrary client strings out of the store keyspace.
func wellFormed(token string) bool {
	if len(token) != base64.RawURLEncoding.EncodedLen(tokenBytes) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil
}

func storageError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "nonce store timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeStorage, "nonce store unavailable")
}
