package models

import (
	"slices"
	"strings"
	"time"

	attmodels "anonpoll/internal/attestation/models"
	dErrors "anonpoll/pkg/domain-errors"
)

// State is a poll's lifecycle position.
type State string

const (
	StateDraft    State = "draft"
	StateActive   State = "active"
	StateEnded    State = "ended"
	StateArchived State = "archived"
)

func ParseState(s string) (State, error) {
	switch st := State(strings.ToLower(strings.TrimSpace(s))); st {
	case StateDraft, StateActive, StateEnded, StateArchived:
		return st, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "state must be one of draft, active, ended, archived")
}

// Closed reports whether the poll no longer accepts votes.
func (s State) Closed() bool {
	return s == StateEnded || s == StateArchived
}

// CanTransition allows only forward moves along draft, active, ended, archived.
func CanTransition(from, to State) bool {
	switch from {
	case StateDraft:
		return to == StateActive || to == StateArchived
	case StateActive:
		return to == StateEnded
	case StateEnded:
		return to == StateArchived
	}
	return false
}

type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// AudienceRule restricts who may vote. Empty fields do not restrict.
type AudienceRule struct {
	Gender  string   `json:"gender,omitempty"`
	Regions []string `json:"regions,omitempty"`
}

// Check evaluates the rule against a snapshot and returns the first failing
// dimension. A missing snapshot field never blocks.
func (r AudienceRule) Check(s attmodels.DemographicSnapshot) (attmodels.Dimension, bool) {
	if r.Gender != "" && s.Gender != "" && !strings.EqualFold(r.Gender, s.Gender) {
		return attmodels.DimensionGender, false
	}
	if len(r.Regions) > 0 && len(s.RegionCodes) > 0 {
		allowed := false
		for _, code := range s.RegionCodes {
			if slices.ContainsFunc(r.Regions, func(region string) bool { return strings.EqualFold(region, code) }) {
				allowed = true
				break
			}
		}
		if !allowed {
			return attmodels.DimensionRegion, false
		}
	}
	return "", true
}

type Poll struct {
	ID        string
	Title     string
	State     State
	Options   []Option
	Audience  AudienceRule
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Poll) HasOption(id string) bool {
	return slices.ContainsFunc(p.Options, func(o Option) bool { return o.ID == id })
}

// LifecycleEvent is published when a poll changes state.
type LifecycleEvent struct {
	PollID     string    `json:"poll_id"`
	State      State     `json:"state"`
	OccurredAt time.Time `json:"occurred_at"`
}
