package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"anonpoll/internal/vote/models"
	dErrors "anonpoll/pkg/domain-errors"
	"anonpoll/pkg/platform/httputil"
	"anonpoll/pkg/requestcontext"
)

// Service defines the vote submission port.
type Service interface {
	Submit(ctx context.Context, req models.SubmitRequest) (models.Status, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts vote endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/votes", h.HandleSubmit)
}

// HandleSubmit handles POST /votes. A duplicate nullifier answers 200 with
// status "duplicate": the caller's vote is already recorded.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	status, err := h.service.Submit(ctx, req.toModel())
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeDuplicateNullifier) {
			httputil.WriteJSON(w, http.StatusOK, SubmitResponse{Status: string(models.StatusDuplicate)})
			return
		}
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "vote accepted",
		"request_id", requestID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, SubmitResponse{Status: string(status)})
}
