package models

import (
	"time"

	dErrors "anonpoll/pkg/domain-errors"
)

// Purpose scopes a nonce so a challenge token can never satisfy a vote check.
type Purpose string

const (
	PurposeChallenge Purpose = "challenge"
	PurposeVote      Purpose = "vote"
)

// ParsePurpose validates a purpose from external input.
func ParsePurpose(s string) (Purpose, error) {
	switch p := Purpose(s); p {
	case PurposeChallenge, PurposeVote:
		return p, nil
	case "":
		return "", dErrors.New(dErrors.CodeValidation, "purpose is required")
	default:
		return "", dErrors.New(dErrors.CodeValidation, "purpose must be challenge or vote")
	}
}

// Nonce is an issued single-use token. Only existence is stored.
type Nonce struct {
	Token     string
	Purpose   Purpose
	ExpiresAt time.Time
}

// Key is the store key for a token under a purpose.
func Key(purpose Purpose, token string) string {
	return string(purpose) + ":" + token
}
