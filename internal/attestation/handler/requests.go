package handler

import (
	"strings"

	"anonpoll/internal/attestation/models"
	dErrors "anonpoll/pkg/domain-errors"
)

const maxFieldLen = 256

// IssueRequest is sent by the identity verification subsystem after it has
// verified a subject. Raw identity never reaches this service.
type IssueRequest struct {
	SubjectKeyMaterial string   `json:"subject_key_material"`
	Gender             string   `json:"gender"`
	AgeBucket          string   `json:"age_bucket"`
	RegionCodes        []string `json:"region_codes"`
	Citizenship        string   `json:"citizenship"`
}

func (r *IssueRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.SubjectKeyMaterial) > maxFieldLen || len(r.Gender) > 32 ||
		len(r.AgeBucket) > 32 || len(r.Citizenship) > 32 || len(r.RegionCodes) > 16 {
		return dErrors.New(dErrors.CodeValidation, "field too long")
	}
	r.SubjectKeyMaterial = strings.TrimSpace(r.SubjectKeyMaterial)
	if r.SubjectKeyMaterial == "" {
		return dErrors.New(dErrors.CodeValidation, "subject_key_material is required")
	}
	return nil
}

func (r *IssueRequest) toModel() models.IssueRequest {
	return models.IssueRequest{
		SubjectKeyMaterial: r.SubjectKeyMaterial,
		Snapshot: models.DemographicSnapshot{
			Gender:      r.Gender,
			AgeBucket:   r.AgeBucket,
			RegionCodes: r.RegionCodes,
			Citizenship: r.Citizenship,
		},
	}
}

// VoteIntentRequest commits the bearer's session to a choice. An empty
// timestamp_bucket means the server's current bucket.
type VoteIntentRequest struct {
	ChallengeNonce  string `json:"challenge_nonce"`
	PollID          string `json:"poll_id"`
	OptionID        string `json:"option_id"`
	TimestampBucket string `json:"timestamp_bucket"`
}

func (r *VoteIntentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.ChallengeNonce) > maxFieldLen || len(r.PollID) > maxFieldLen ||
		len(r.OptionID) > maxFieldLen || len(r.TimestampBucket) > 32 {
		return dErrors.New(dErrors.CodeValidation, "field too long")
	}
	r.PollID = strings.TrimSpace(r.PollID)
	r.OptionID = strings.TrimSpace(r.OptionID)
	r.TimestampBucket = strings.TrimSpace(r.TimestampBucket)
	if r.ChallengeNonce == "" {
		return dErrors.New(dErrors.CodeValidation, "challenge_nonce is required")
	}
	if r.PollID == "" || r.OptionID == "" {
		return dErrors.New(dErrors.CodeValidation, "poll_id and option_id are required")
	}
	return nil
}

type CredentialResponse struct {
	Attestation     string `json:"attestation"`
	Kind            string `json:"kind"`
	ExpiresAt       string `json:"expires_at"`
	TimestampBucket string `json:"timestamp_bucket,omitempty"`
	Nullifier       string `json:"nullifier,omitempty"`
}
