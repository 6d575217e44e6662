package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	attmodels "anonpoll/internal/attestation/models"
	"anonpoll/internal/disclosure/models"
	"anonpoll/internal/platform/middleware"
	"anonpoll/pkg/platform/httputil"
	"anonpoll/pkg/requestcontext"
)

// Service defines the aggregate query port.
type Service interface {
	GetPollResults(ctx context.Context, pollID string, dims []attmodels.Dimension) (*models.PollResults, error)
	GetSecurityEventsSummary(ctx context.Context, f models.SecurityFilter) (*models.SecuritySummary, error)
}

type Handler struct {
	service    Service
	logger     *slog.Logger
	adminToken string
}

func New(service Service, logger *slog.Logger, adminToken string) *Handler {
	return &Handler{service: service, logger: logger, adminToken: adminToken}
}

// Register mounts the public results endpoint and the admin security summary.
func (h *Handler) Register(r chi.Router) {
	r.Get("/polls/{pollId}/results", h.HandleResults)
	r.With(middleware.RequireAdminToken(h.adminToken, h.logger)).
		Get("/security-events/summary", h.HandleSecuritySummary)
}

// HandleResults handles GET /polls/{pollId}/results?breakdown=gender,region.
func (h *Handler) HandleResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dims, err := parseBreakdown(r.URL.Query()["breakdown"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.GetPollResults(ctx, chi.URLParam(r, "pollId"), dims)
	if err != nil {
		h.logger.WarnContext(ctx, "poll results failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleSecuritySummary handles GET /security-events/summary.
func (h *Handler) HandleSecuritySummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseSecurityFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	sum, err := h.service.GetSecurityEventsSummary(ctx, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sum)
}
