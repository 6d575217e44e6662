package models

import (
	"strings"
	"time"
)

// Kind distinguishes the long-lived session credential from the short-lived
// per-vote attestation.
type Kind string

const (
	KindSession    Kind = "session"
	KindVoteIntent Kind = "vote_intent"
)

// Dimension names a demographic axis. The set is closed.
type Dimension string

const (
	DimensionGender      Dimension = "gender"
	DimensionAgeBucket   Dimension = "age_bucket"
	DimensionRegion      Dimension = "region"
	DimensionCitizenship Dimension = "citizenship"
)

// Dimensions lists every breakdown dimension in canonical order.
var Dimensions = []Dimension{DimensionGender, DimensionAgeBucket, DimensionRegion, DimensionCitizenship}

func ParseDimension(s string) (Dimension, bool) {
	d := Dimension(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Dimensions {
		if d == known {
			return d, true
		}
	}
	return "", false
}

// DemographicSnapshot holds bucketed, externally verified attributes.
// Any field may be empty; empty fields never block eligibility.
type DemographicSnapshot struct {
	Gender      string   `json:"gender,omitempty"`
	AgeBucket   string   `json:"age_bucket,omitempty"`
	RegionCodes []string `json:"region_codes,omitempty"`
	Citizenship string   `json:"citizenship,omitempty"`
}

// PrimaryRegion is the region a vote is counted under in breakdowns.
func (d DemographicSnapshot) PrimaryRegion() string {
	if len(d.RegionCodes) == 0 {
		return ""
	}
	return d.RegionCodes[0]
}

// Value returns the snapshot's value along dim.
func (d DemographicSnapshot) Value(dim Dimension) string {
	switch dim {
	case DimensionGender:
		return d.Gender
	case DimensionAgeBucket:
		return d.AgeBucket
	case DimensionRegion:
		return d.PrimaryRegion()
	case DimensionCitizenship:
		return d.Citizenship
	}
	return ""
}

// Claims is a verified attestation. PollBinding, PayloadCommitment and
// Nullifier are only set on vote-intent attestations; Pseudonym only on
// session credentials.
type Claims struct {
	ID                string
	Kind              Kind
	Pseudonym         string
	Snapshot          DemographicSnapshot
	PollBinding       string
	PayloadCommitment string
	Nullifier         string
	IssuedAt          time.Time
	ExpiresAt         time.Time
}

// Credential is an issued, signed attestation.
type Credential struct {
	Token     string
	Kind      Kind
	ExpiresAt time.Time
	// Nullifier is echoed for vote intents so the client can submit it.
	Nullifier string
}

// IssueRequest carries the output of external identity verification.
type IssueRequest struct {
	SubjectKeyMaterial string
	Snapshot           DemographicSnapshot
}

// VoteIntentRequest commits a session holder to one choice in one poll.
type VoteIntentRequest struct {
	SessionToken    string
	ChallengeNonce  string
	PollID          string
	OptionID        string
	TimestampBucket string
}
