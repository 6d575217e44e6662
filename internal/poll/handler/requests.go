package handler

import (
	"time"

	"anonpoll/internal/poll/models"
	"anonpoll/internal/poll/service"
	dErrors "anonpoll/pkg/domain-errors"
)

type CreateRequest struct {
	ID       string              `json:"id"`
	Title    string              `json:"title"`
	Options  []models.Option     `json:"options"`
	Audience models.AudienceRule `json:"audience"`
}

func (r *CreateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Title) > 512 || len(r.Options) > 64 || len(r.Audience.Regions) > 256 {
		return dErrors.New(dErrors.CodeValidation, "poll definition too large")
	}
	return nil
}

func (r *CreateRequest) toService() service.CreateRequest {
	return service.CreateRequest{ID: r.ID, Title: r.Title, Options: r.Options, Audience: r.Audience}
}

type TransitionRequest struct {
	State string `json:"state"`

	state models.State
}

func (r *TransitionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	st, err := models.ParseState(r.State)
	if err != nil {
		return err
	}
	r.state = st
	return nil
}

type PollResponse struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	State     string              `json:"state"`
	Options   []models.Option     `json:"options"`
	Audience  models.AudienceRule `json:"audience"`
	UpdatedAt string              `json:"updated_at,omitempty"`
}

func toResponse(p *models.Poll) PollResponse {
	resp := PollResponse{
		ID:       p.ID,
		Title:    p.Title,
		State:    string(p.State),
		Options:  p.Options,
		Audience: p.Audience,
	}
	if !p.UpdatedAt.IsZero() {
		resp.UpdatedAt = p.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
