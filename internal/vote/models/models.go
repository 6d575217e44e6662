package models

import (
	"time"

	"github.com/google/uuid"

	attmodels "anonpoll/internal/attestation/models"
)

// Status is the caller-visible outcome of a submission.
type Status string

const (
	StatusCommitted Status = "committed"
	StatusDuplicate Status = "duplicate"
)

// SubmitRequest is one vote submission. Attestation is a vote-intent token.
type SubmitRequest struct {
	PollID          string
	OptionID        string
	Nullifier       string
	TimestampBucket string
	Attestation     string
	VoteNonce       string
}

// Vote is an append-only ledger row. It holds the frozen snapshot and
// nothing that identifies the voter.
type Vote struct {
	ID        uuid.UUID
	PollID    string
	OptionID  string
	Snapshot  attmodels.DemographicSnapshot
	CreatedAt time.Time
}

// LedgerPrecision is the granularity of stored vote timestamps.
const LedgerPrecision = time.Hour
