package handler

import (
	"strings"

	"anonpoll/internal/nonce/models"
	dErrors "anonpoll/pkg/domain-errors"
)

// ChallengeRequest is the body of POST /challenge.
type ChallengeRequest struct {
	Purpose string `json:"purpose"`

	purpose models.Purpose
}

func (r *ChallengeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	p, err := models.ParsePurpose(strings.ToLower(strings.TrimSpace(r.Purpose)))
	if err != nil {
		return err
	}
	r.purpose = p
	return nil
}

type ChallengeResponse struct {
	Nonce     string `json:"nonce"`
	Purpose   string `json:"purpose"`
	ExpiresAt string `json:"expires_at"`
}
