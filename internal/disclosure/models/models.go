package models

import (
	"time"

	attmodels "anonpoll/internal/attestation/models"
)

// OptionResult is one option as disclosed. Count and Percentage are nil when
// the option is below the threshold.
type OptionResult struct {
	OptionID   string   `json:"option_id"`
	Count      *int     `json:"count"`
	Percentage *float64 `json:"percentage,omitempty"`
	Suppressed bool     `json:"suppressed,omitempty"`
}

// Cohort is one value of a breakdown dimension.
type Cohort struct {
	Value      string   `json:"value"`
	Count      *int     `json:"count"`
	Percentage *float64 `json:"percentage,omitempty"`
	Suppressed bool     `json:"suppressed,omitempty"`
}

// Breakdown is the result for one requested dimension. Denied is set when
// the overlap guard refused it; Suppressed when complementary suppression
// withheld every cohort.
type Breakdown struct {
	Dimension  attmodels.Dimension `json:"dimension"`
	Cohorts    []Cohort            `json:"cohorts,omitempty"`
	Suppressed bool                `json:"suppressed,omitempty"`
	Denied     string              `json:"denied,omitempty"`
}

// PollResults is the response of a results query. TotalVotes is nil when the
// whole poll is below the threshold.
type PollResults struct {
	PollID     string         `json:"poll_id"`
	TotalVotes *int           `json:"total_votes"`
	Suppressed bool           `json:"suppressed,omitempty"`
	Options    []OptionResult `json:"options"`
	Breakdowns []Breakdown    `json:"breakdowns,omitempty"`
}

// Tally is a consistent read of one poll: option counts, total, and per
// requested dimension the cohort counts. Votes lacking a dimension value are
// in Total but in no cohort.
type Tally struct {
	Total   int
	Options map[string]int
	Cohorts map[attmodels.Dimension]map[string]int
}

// SecurityEventCell is one (action, severity) aggregate. A suppressed cell
// carries neither count nor timestamps.
type SecurityEventCell struct {
	Action     string     `json:"action"`
	Severity   string     `json:"severity"`
	Count      *int       `json:"count"`
	FirstSeen  *time.Time `json:"first_seen,omitempty"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
	Suppressed bool       `json:"suppressed,omitempty"`
}

type SecuritySummary struct {
	Total      *int                `json:"total"`
	Suppressed bool                `json:"suppressed,omitempty"`
	Events     []SecurityEventCell `json:"events"`
}

// SecurityFilter narrows the security summary.
type SecurityFilter struct {
	Since    time.Time
	Until    time.Time
	Severity string
	Action   string
	PollID   string
}
