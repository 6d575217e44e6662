// Package service implements the vote submission pipeline. Every check before
// the commit is side-effect free apart from consuming the vote nonce; the
// commit is one transaction whose nullifier insert is the only duplicate check.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	attmodels "anonpoll/internal/attestation/models"
	noncemodels "anonpoll/internal/nonce/models"
	pollmodels "anonpoll/internal/poll/models"
	"anonpoll/internal/vote/metrics"
	"anonpoll/internal/vote/models"
	dErrors "anonpoll/pkg/domain-errors"
	audit "anonpoll/pkg/platform/audit"
	"anonpoll/pkg/platform/sentinel"
	"anonpoll/pkg/requestcontext"
)

// AttestationVerifier is the Attestation Authority's verification surface.
type AttestationVerifier interface {
	Verify(ctx context.Context, token string) (attmodels.Claims, error)
	VerifyPayloadBinding(pollID, optionID, timestampBucket, committedHash string) bool
}

type NonceConsumer interface {
	VerifyAndConsume(ctx context.Context, token string, purpose noncemodels.Purpose) (bool, error)
}

// PollReader returns CodeNotFound for unknown polls.
type PollReader interface {
	Get(ctx context.Context, id string) (*pollmodels.Poll, error)
}

// Store commits a vote. A duplicate nullifier is sentinel.ErrConflict.
type Store interface {
	Commit(ctx context.Context, v models.Vote, nullifier string, event audit.Event) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	attestations AttestationVerifier
	nonces       NonceConsumer
	polls        PollReader
	store        Store
	auditor      AuditPublisher
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer

	storageTimeout time.Duration
	commitRetries  uint64
	newBackOff     func() backoff.BackOff
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditor = p }
}

// WithStorageTimeout bounds each commit attempt.
func WithStorageTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storageTimeout = d
		}
	}
}

// WithCommitRetries sets how many times a storage error is retried.
func WithCommitRetries(n uint64) Option {
	return func(s *Service) { s.commitRetries = n }
}

// WithBackOff replaces the retry schedule. Tests use a zero backoff.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(s *Service) { s.newBackOff = f }
}

func New(att AttestationVerifier, nonces NonceConsumer, polls PollReader, store Store, opts ...Option) *Service {
	s := &Service{
		attestations:   att,
		nonces:         nonces,
		polls:          polls,
		store:          store,
		logger:         slog.New(slog.DiscardHandler),
		tracer:         otel.Tracer("anonpoll/internal/vote"),
		storageTimeout: 3 * time.Second,
		commitRetries:  3,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			return b
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit runs the pipeline. DuplicateNullifier is returned as an error so
// callers can tell it apart, but it means the vote is already recorded.
func (s *Service) Submit(ctx context.Context, req models.SubmitRequest) (models.Status, error) {
	ctx, span := s.tracer.Start(ctx, "vote.Submit", trace.WithAttributes(attribute.String("poll.id", req.PollID)))
	defer span.End()

	status, err := s.submit(ctx, req)
	switch {
	case err == nil:
		s.metrics.IncOutcome(string(status))
	case dErrors.HasCode(err, dErrors.CodeDuplicateNullifier):
		s.metrics.IncOutcome(string(models.StatusDuplicate))
		span.SetAttributes(attribute.Bool("vote.duplicate", true))
	default:
		code := dErrors.CodeOf(err)
		s.metrics.IncOutcome(string(code))
		span.SetStatus(codes.Error, string(code))
	}
	return status, err
}

func (s *Service) submit(ctx context.Context, req models.SubmitRequest) (models.Status, error) {
	claims, err := s.verify(ctx, req)
	if err != nil {
		return "", err
	}
	if err := s.consumeNonce(ctx, req); err != nil {
		return "", err
	}
	if err := s.checkPoll(ctx, req, claims.Snapshot); err != nil {
		return "", err
	}
	return s.commit(ctx, req, claims)
}

// verify covers attestation validity, poll binding, payload binding and the
// nullifier carried by the attestation.
func (s *Service) verify(ctx context.Context, req models.SubmitRequest) (attmodels.Claims, error) {
	ctx, done := s.stage(ctx, "verify")
	defer done()

	claims, err := s.attestations.Verify(ctx, req.Attestation)
	if err != nil {
		return attmodels.Claims{}, s.reject(ctx, req.PollID, err)
	}
	if claims.Kind != attmodels.KindVoteIntent {
		return attmodels.Claims{}, s.reject(ctx, req.PollID,
			dErrors.New(dErrors.CodeInvalidAttestation, "a vote-intent attestation is required"))
	}
	if claims.PollBinding != "" && claims.PollBinding != req.PollID {
		return attmodels.Claims{}, s.reject(ctx, req.PollID,
			dErrors.New(dErrors.CodePollBindingMismatch, "attestation is bound to another poll"))
	}
	if !s.attestations.VerifyPayloadBinding(req.PollID, req.OptionID, req.TimestampBucket, claims.PayloadCommitment) {
		return attmodels.Claims{}, s.reject(ctx, req.PollID,
			dErrors.New(dErrors.CodePayloadHashMismatch, "vote does not match the attested commitment"))
	}
	if claims.Nullifier == "" || normalizeHex(req.Nullifier) != claims.Nullifier {
		return attmodels.Claims{}, s.reject(ctx, req.PollID,
			dErrors.New(dErrors.CodePayloadHashMismatch, "nullifier does not match the attestation"))
	}
	return claims, nil
}

func (s *Service) consumeNonce(ctx context.Context, req models.SubmitRequest) error {
	ctx, done := s.stage(ctx, "consume_nonce")
	defer done()

	ok, err := s.nonces.VerifyAndConsume(ctx, req.VoteNonce, noncemodels.PurposeVote)
	if err != nil {
		return err
	}
	if !ok {
		return s.reject(ctx, req.PollID,
			dErrors.New(dErrors.CodeExpiredOrInvalidNonce, "vote nonce is expired or invalid"))
	}
	return nil
}

func (s *Service) checkPoll(ctx context.Context, req models.SubmitRequest, snapshot attmodels.DemographicSnapshot) error {
	ctx, done := s.stage(ctx, "check_poll")
	defer done()

	readCtx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	poll, err := s.polls.Get(readCtx, req.PollID)
	cancel()
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return s.reject(ctx, req.PollID,
				dErrors.New(dErrors.CodePollNotActive, "poll is not active or does not exist"))
		}
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to read poll")
	}
	if poll.State != pollmodels.StateActive {
		return s.reject(ctx, req.PollID,
			dErrors.New(dErrors.CodePollNotActive, "poll is not active or does not exist"))
	}
	if !poll.HasOption(req.OptionID) {
		return s.reject(ctx, req.PollID,
			dErrors.New(dErrors.CodeInvalidOption, "option does not belong to poll"))
	}
	if dim, ok := poll.Audience.Check(snapshot); !ok {
		return s.reject(ctx, req.PollID,
			dErrors.New(dErrors.CodeNotEligible, string(dim)))
	}
	return nil
}

func (s *Service) commit(ctx context.Context, req models.SubmitRequest, claims attmodels.Claims) (models.Status, error) {
	ctx, done := s.stage(ctx, "commit")
	defer done()
	span := trace.SpanFromContext(ctx)

	now := requestcontext.Now(ctx)
	vote := models.Vote{
		ID:        uuid.New(),
		PollID:    req.PollID,
		OptionID:  req.OptionID,
		Snapshot:  claims.Snapshot,
		CreatedAt: now,
	}
	event := audit.Event{
		Action:    string(audit.EventVoteCommitted),
		Severity:  audit.SeverityInfo,
		PollID:    req.PollID,
		RequestID: requestcontext.RequestID(ctx),
	}
	event.Normalize(now)

	attempt := 0
	op := func() error {
		if attempt > 0 {
			s.metrics.IncCommitRetry()
		}
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, s.storageTimeout)
		defer cancel()

		err := s.store.Commit(attemptCtx, vote, claims.Nullifier, event)
		if err == nil {
			return nil
		}
		if errors.Is(err, sentinel.ErrConflict) {
			return backoff.Permanent(dErrors.New(dErrors.CodeDuplicateNullifier, "a vote for this poll is already recorded"))
		}
		s.logger.WarnContext(ctx, "vote commit attempt failed",
			"request_id", event.RequestID,
			"poll_id", req.PollID,
			"attempt", attempt,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to commit vote")
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), s.commitRetries), ctx)
	err := backoff.Retry(op, b)
	span.SetAttributes(attribute.Int("vote.commit_attempts", attempt))
	if err == nil {
		s.logger.InfoContext(ctx, "vote committed",
			"request_id", event.RequestID,
			"poll_id", req.PollID,
		)
		return models.StatusCommitted, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	if dErrors.HasCode(err, dErrors.CodeDuplicateNullifier) {
		s.logger.WarnContext(ctx, "duplicate vote rejected",
			"request_id", event.RequestID,
			"poll_id", req.PollID,
		)
		s.emit(ctx, audit.Event{
			Action:   string(audit.EventVoteDuplicate),
			Severity: audit.SeverityWarning,
			PollID:   req.PollID,
			Reason:   string(dErrors.CodeDuplicateNullifier),
		})
		return models.StatusDuplicate, err
	}
	if !dErrors.HasCode(err, dErrors.CodeStorage) {
		err = dErrors.Wrap(err, dErrors.CodeStorage, "failed to commit vote")
	}
	span.RecordError(err)
	s.logger.ErrorContext(ctx, "vote commit failed",
		"request_id", event.RequestID,
		"poll_id", req.PollID,
		"attempts", attempt,
		"error", err,
	)
	return "", err
}

// reject logs and audits a rejected submission and returns err unchanged.
func (s *Service) reject(ctx context.Context, pollID string, err error) error {
	code := dErrors.CodeOf(err)
	s.logger.WarnContext(ctx, "vote rejected",
		"request_id", requestcontext.RequestID(ctx),
		"poll_id", pollID,
		"reason", code,
	)
	reason := string(code)
	var de *dErrors.Error
	if code == dErrors.CodeNotEligible && errors.As(err, &de) {
		reason += ":" + de.Message
	}
	s.emit(ctx, audit.Event{
		Action:   string(audit.EventVoteRejected),
		Severity: audit.SeverityWarning,
		PollID:   pollID,
		Reason:   reason,
	})
	return err
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}

// stage opens a child span and returns a func that ends it and records latency.
func (s *Service) stage(ctx context.Context, name string) (context.Context, func()) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "vote."+name)
	return ctx, func() {
		span.End()
		s.metrics.ObserveStage(name, time.Since(start))
	}
}

func normalizeHex(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimPrefix(s, "0x")
}
