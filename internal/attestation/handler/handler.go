package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"anonpoll/internal/attestation/models"
	"anonpoll/internal/platform/middleware"
	"anonpoll/pkg/platform/httputil"
	"anonpoll/pkg/requestcontext"
)

// Service defines the attestation operations exposed over HTTP.
type Service interface {
	Issue(ctx context.Context, req models.IssueRequest) (models.Credential, error)
	IssueVoteIntent(ctx context.Context, req models.VoteIntentRequest) (models.Credential, error)
	CurrentBucket(ctx context.Context) string
}

type Handler struct {
	service    Service
	logger     *slog.Logger
	adminToken string
}

func New(service Service, logger *slog.Logger, adminToken string) *Handler {
	return &Handler{service: service, logger: logger, adminToken: adminToken}
}

// Register mounts attestation endpoints. Issuance is restricted to the
// identity verification collaborator holding the admin token.
func (h *Handler) Register(r chi.Router) {
	r.With(middleware.RequireAdminToken(h.adminToken, h.logger)).Post("/attestations", h.HandleIssue)
	r.With(middleware.RequireBearer(h.logger)).Post("/attestations/vote-intent", h.HandleVoteIntent)
}

// HandleIssue handles POST /attestations.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[IssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	cred, err := h.service.Issue(ctx, req.toModel())
	if err != nil {
		h.logger.ErrorContext(ctx, "credential issuance failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "credential issued", "request_id", requestID)
	httputil.WriteJSON(w, http.StatusCreated, toResponse(cred, ""))
}

// HandleVoteIntent handles POST /attestations/vote-intent.
func (h *Handler) HandleVoteIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VoteIntentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	bucket := req.TimestampBucket
	if bucket == "" {
		bucket = h.service.CurrentBucket(ctx)
	}

	cred, err := h.service.IssueVoteIntent(ctx, models.VoteIntentRequest{
		SessionToken:    middleware.GetBearerToken(ctx),
		ChallengeNonce:  req.ChallengeNonce,
		PollID:          req.PollID,
		OptionID:        req.OptionID,
		TimestampBucket: bucket,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "vote intent rejected",
			"request_id", requestID,
			"poll_id", req.PollID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toResponse(cred, bucket))
}

func toResponse(c models.Credential, bucket string) CredentialResponse {
	return CredentialResponse{
		Attestation:     c.Token,
		Kind:            string(c.Kind),
		ExpiresAt:       c.ExpiresAt.UTC().Format(time.RFC3339),
		TimestampBucket: bucket,
		Nullifier:       c.Nullifier,
	}
}
