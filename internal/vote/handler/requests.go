package handler

import (
	"strings"

	"anonpoll/internal/vote/models"
	dErrors "anonpoll/pkg/domain-errors"
)

// SubmitRequest is the body of POST /votes.
type SubmitRequest struct {
	PollID          string `json:"poll_id"`
	OptionID        string `json:"option_id"`
	Nullifier       string `json:"nullifier"`
	TimestampBucket string `json:"timestamp_bucket"`
	Attestation     string `json:"attestation"`
	Nonce           string `json:"nonce"`
}

func (r *SubmitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.PollID) > 256 || len(r.OptionID) > 256 || len(r.Nullifier) > 256 ||
		len(r.TimestampBucket) > 32 || len(r.Attestation) > 8192 || len(r.Nonce) > 256 {
		return dErrors.New(dErrors.CodeValidation, "field too long")
	}
	r.PollID = strings.TrimSpace(r.PollID)
	r.OptionID = strings.TrimSpace(r.OptionID)
	r.TimestampBucket = strings.TrimSpace(r.TimestampBucket)
	r.Attestation = strings.TrimSpace(r.Attestation)

	switch {
	case r.PollID == "", r.OptionID == "":
		return dErrors.New(dErrors.CodeValidation, "poll_id and option_id are required")
	case r.Nullifier == "":
		return dErrors.New(dErrors.CodeValidation, "nullifier is required")
	case r.TimestampBucket == "":
		return dErrors.New(dErrors.CodeValidation, "timestamp_bucket is required")
	case r.Attestation == "":
		return dErrors.New(dErrors.CodeValidation, "attestation is required")
	case r.Nonce == "":
		return dErrors.New(dErrors.CodeValidation, "nonce is required")
	}
	return nil
}

func (r *SubmitRequest) toModel() models.SubmitRequest {
	return models.SubmitRequest{
		PollID:          r.PollID,
		OptionID:        r.OptionID,
		Nullifier:       r.Nullifier,
		TimestampBucket: r.TimestampBucket,
		Attestation:     r.Attestation,
		VoteNonce:       r.Nonce,
	}
}

type SubmitResponse struct {
	Status string `json:"status"`
}
