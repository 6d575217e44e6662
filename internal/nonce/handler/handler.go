package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"anonpoll/internal/nonce/models"
	"anonpoll/pkg/platform/httputil"
	"anonpoll/pkg/requestcontext"
)

// Service is the nonce issuance port.
type Service interface {
	Generate(ctx context.Context, purpose models.Purpose) (models.Nonce, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts nonce endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/challenge", h.HandleChallenge)
}

// HandleChallenge handles POST /challenge.
func (h *Handler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ChallengeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	n, err := h.service.Generate(ctx, req.purpose)
	if err != nil {
		h.logger.ErrorContext(ctx, "challenge issuance failed",
			"request_id", requestID,
			"purpose", req.purpose,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, ChallengeResponse{
		Nonce:     n.Token,
		Purpose:   string(n.Purpose),
		ExpiresAt: n.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
