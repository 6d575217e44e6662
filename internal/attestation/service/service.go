// Package service implements the Attestation Authority. It is the only place
// a subject key is turned into a pseudonym, and the only place a pseudonym is
// turned into a per-poll nullifier.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"anonpoll/internal/attestation/binding"
	"anonpoll/internal/attestation/models"
	"anonpoll/internal/attestation/token"
	noncemodels "anonpoll/internal/nonce/models"
	dErrors "anonpoll/pkg/domain-errors"
	audit "anonpoll/pkg/platform/audit"
	"anonpoll/pkg/requestcontext"
)

// NonceConsumer is the Nonce Authority's consume operation.
type NonceConsumer interface {
	VerifyAndConsume(ctx context.Context, token string, purpose noncemodels.Purpose) (bool, error)
}

// AuditPublisher records security and issuance events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Config holds the static attestation settings.
type Config struct {
	SigningKey         string
	Issuer             string
	PseudonymKey       string
	NullifierKey       string
	CredentialLifetime time.Duration
	VoteIntentLifetime time.Duration
	TimestampBucket    time.Duration
}

type Authority struct {
	signer  *token.Signer
	deriver *binding.Deriver
	nonces  NonceConsumer
	auditor AuditPublisher
	logger  *slog.Logger

	credentialLifetime time.Duration
	voteIntentLifetime time.Duration
	bucketSize         time.Duration
}

type Option func(*Authority)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Authority) { a.logger = logger }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(a *Authority) { a.auditor = p }
}

func New(cfg Config, nonces NonceConsumer, opts ...Option) *Authority {
	a := &Authority{
		signer:             token.NewSigner(cfg.SigningKey, cfg.Issuer),
		deriver:            binding.NewDeriver(cfg.PseudonymKey, cfg.NullifierKey),
		nonces:             nonces,
		logger:             slog.New(slog.DiscardHandler),
		credentialLifetime: cfg.CredentialLifetime,
		voteIntentLifetime: cfg.VoteIntentLifetime,
		bucketSize:         cfg.TimestampBucket,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Issue signs a session credential for an externally verified subject.
func (a *Authority) Issue(ctx context.Context, req models.IssueRequest) (models.Credential, error) {
	material := strings.TrimSpace(req.SubjectKeyMaterial)
	if material == "" {
		return models.Credential{}, dErrors.New(dErrors.CodeValidation, "subject key material is required")
	}

	now := requestcontext.Now(ctx)
	claims := models.Claims{
		Kind:      models.KindSession,
		Pseudonym: a.deriver.Pseudonym(material),
		Snapshot:  normalizeSnapshot(req.Snapshot),
		IssuedAt:  now,
		ExpiresAt: now.Add(a.credentialLifetime),
	}
	signed, err := a.signer.Sign(claims)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to sign credential",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return models.Credential{}, err
	}

	a.emit(ctx, audit.Event{Action: string(audit.EventCredentialIssued)})
	return models.Credential{Token: signed, Kind: models.KindSession, ExpiresAt: claims.ExpiresAt}, nil
}

// Verify checks signature and expiry. It never returns partially trusted claims.
func (a *Authority) Verify(_ context.Context, tok string) (models.Claims, error) {
	return a.signer.Verify(tok)
}

// VerifyPayloadBinding requires the committed hash to match the recomputed one exactly.
func (a *Authority) VerifyPayloadBinding(pollID, optionID, timestampBucket, committedHash string) bool {
	return binding.VerifyPayloadBinding(pollID, optionID, timestampBucket, committedHash)
}

// IssueVoteIntent exchanges a session credential and a challenge nonce for
// a short-lived attestation bound to one poll, one option and one bucket.
// The returned attestation carries the subject's nullifier for that poll
// but not the pseudonym.
func (a *Authority) IssueVoteIntent(ctx context.Context, req models.VoteIntentRequest) (models.Credential, error) {
	session, err := a.signer.Verify(req.SessionToken)
	if err != nil {
		a.reject(ctx, audit.EventAttestationRejected, req.PollID, string(dErrors.CodeOf(err)))
		return models.Credential{}, err
	}
	if session.Kind != models.KindSession {
		a.reject(ctx, audit.EventAttestationRejected, req.PollID, "wrong_kind")
		return models.Credential{}, dErrors.New(dErrors.CodeInvalidAttestation, "session credential required")
	}

	now := requestcontext.Now(ctx)
	if req.PollID == "" || req.OptionID == "" {
		return models.Credential{}, dErrors.New(dErrors.CodeValidation, "poll_id and option_id are required")
	}
	if !binding.BucketWithin(req.TimestampBucket, now, a.bucketSize) {
		return models.Credential{}, dErrors.New(dErrors.CodeValidation, "timestamp_bucket is outside the accepted window")
	}

	ok, err := a.nonces.VerifyAndConsume(ctx, req.ChallengeNonce, noncemodels.PurposeChallenge)
	if err != nil {
		return models.Credential{}, err
	}
	if !ok {
		a.reject(ctx, audit.EventNonceRejected, req.PollID, "challenge")
		return models.Credential{}, dErrors.New(dErrors.CodeExpiredOrInvalidNonce, "challenge nonce is expired or invalid")
	}

	expiresAt := now.Add(a.voteIntentLifetime)
	if session.ExpiresAt.Before(expiresAt) {
		expiresAt = session.ExpiresAt
	}
	claims := models.Claims{
		Kind:              models.KindVoteIntent,
		Snapshot:          session.Snapshot,
		PollBinding:       req.PollID,
		PayloadCommitment: binding.Commitment(req.PollID, req.OptionID, req.TimestampBucket),
		Nullifier:         a.deriver.Nullifier(req.PollID, session.Pseudonym),
		IssuedAt:          now,
		ExpiresAt:         expiresAt,
	}
	signed, err := a.signer.Sign(claims)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to sign vote intent",
			"request_id", requestcontext.RequestID(ctx),
			"poll_id", req.PollID,
			"error", err,
		)
		return models.Credential{}, err
	}

	a.emit(ctx, audit.Event{Action: string(audit.EventVoteIntentIssued), PollID: req.PollID})
	return models.Credential{Token: signed, Kind: models.KindVoteIntent, ExpiresAt: expiresAt, Nullifier: claims.Nullifier}, nil
}

// CurrentBucket is the bucket a client should commit to now.
func (a *Authority) CurrentBucket(ctx context.Context) string {
	return binding.Bucket(requestcontext.Now(ctx), a.bucketSize)
}

func (a *Authority) reject(ctx context.Context, action audit.AuditEvent, pollID, reason string) {
	a.logger.WarnContext(ctx, "attestation request rejected",
		"request_id", requestcontext.RequestID(ctx),
		"action", action,
		"reason", reason,
	)
	a.emit(ctx, audit.Event{
		Action:   string(action),
		Severity: audit.SeverityWarning,
		PollID:   pollID,
		Reason:   reason,
	})
}

func (a *Authority) emit(ctx context.Context, event audit.Event) {
	if a.auditor == nil {
		return
	}
	if err := a.auditor.Emit(ctx, event); err != nil {
		a.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}

func normalizeSnapshot(s models.DemographicSnapshot) models.DemographicSnapshot {
	out := models.DemographicSnapshot{
		Gender:      strings.ToLower(strings.TrimSpace(s.Gender)),
		AgeBucket:   strings.TrimSpace(s.AgeBucket),
		Citizenship: strings.ToUpper(strings.TrimSpace(s.Citizenship)),
	}
	for _, r := range s.RegionCodes {
		if r = strings.ToUpper(strings.TrimSpace(r)); r != "" {
			out.RegionCodes = append(out.RegionCodes, r)
		}
	}
	return out
}
