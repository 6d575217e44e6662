// Package overlap guards against differencing attacks by remembering the
// last breakdown dimension set served for each poll and refusing a follow-up
// set nested inside or around it.
package overlap

import (
	"context"
	"slices"
	"strings"

	attmodels "anonpoll/internal/attestation/models"
)

// Relation between a requested dimension set and the recorded one.
type Relation int

const (
	Unrelated Relation = iota
	Equal
	Subset
	Superset
)

// Compare classifies next against prev. An empty prev relates to nothing.
func Compare(prev, next []attmodels.Dimension) Relation {
	if len(prev) == 0 || len(next) == 0 {
		return Unrelated
	}
	p := toSet(prev)
	n := toSet(next)
	nInP := containsAll(p, n)
	pInN := containsAll(n, p)
	switch {
	case nInP && pInN:
		return Equal
	case nInP:
		return Subset
	case pInN:
		return Superset
	}
	return Unrelated
}

// Denied reports whether a relation permits subtraction between results.
func (r Relation) Denied() bool {
	return r == Subset || r == Superset
}

// Guard checks and records dimension sets. CheckAndRecord is atomic per
// poll: it returns false without touching the record when the request is
// nested in the previous one, and otherwise overwrites the record.
type Guard interface {
	CheckAndRecord(ctx context.Context, pollID string, dims []attmodels.Dimension) (bool, error)
	Reset(ctx context.Context, pollID string) error
}

// encode renders a set canonically: deduplicated, sorted, comma joined.
func encode(dims []attmodels.Dimension) string {
	ss := make([]string, 0, len(dims))
	for _, d := range dims {
		ss = append(ss, string(d))
	}
	slices.Sort(ss)
	return strings.Join(slices.Compact(ss), ",")
}

func decode(s string) []attmodels.Dimension {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]attmodels.Dimension, len(parts))
	for i, p := range parts {
		out[i] = attmodels.Dimension(p)
	}
	return out
}

func toSet(dims []attmodels.Dimension) map[attmodels.Dimension]struct{} {
	m := make(map[attmodels.Dimension]struct{}, len(dims))
	for _, d := range dims {
		m[d] = struct{}{}
	}
	return m
}

func containsAll(outer, inner map[attmodels.Dimension]struct{}) bool {
	for d := range inner {
		if _, ok := outer[d]; !ok {
			return false
		}
	}
	return true
}
