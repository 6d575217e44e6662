package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"anonpoll/internal/platform/middleware"
	"anonpoll/internal/poll/models"
	"anonpoll/internal/poll/service"
	"anonpoll/pkg/platform/httputil"
	"anonpoll/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.Poll, error)
	Get(ctx context.Context, id string) (*models.Poll, error)
	Transition(ctx context.Context, id string, to models.State) (*models.Poll, error)
}

type Handler struct {
	service    Service
	logger     *slog.Logger
	adminToken string
}

func New(service Service, logger *slog.Logger, adminToken string) *Handler {
	return &Handler{service: service, logger: logger, adminToken: adminToken}
}

// Register mounts the public poll read and the admin lifecycle endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Get("/polls/{pollId}", h.HandleGet)
	r.Route("/admin/polls", func(r chi.Router) {
		r.Use(middleware.RequireAdminToken(h.adminToken, h.logger))
		r.Post("/", h.HandleCreate)
		r.Post("/{pollId}/state", h.HandleTransition)
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "pollId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	p, err := h.service.Create(ctx, req.toService())
	if err != nil {
		h.logger.WarnContext(ctx, "poll creation failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(p))
}

func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[TransitionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	p, err := h.service.Transition(ctx, chi.URLParam(r, "pollId"), req.state)
	if err != nil {
		h.logger.WarnContext(ctx, "poll transition failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(p))
}
