package store

import (
	"context"
	"fmt"

	attmodels "anonpoll/internal/attestation/models"
	"anonpoll/internal/disclosure/models"
	votemodels "anonpoll/internal/vote/models"
)

// VoteLister is the in-memory vote ledger's read side.
type VoteLister interface {
	VotesForPoll(ctx context.Context, pollID string) ([]votemodels.Vote, error)
}

// InMemoryStore tallies a copy of the in-memory ledger.
type InMemoryStore struct {
	votes VoteLister
}

func NewInMemory(votes VoteLister) *InMemoryStore {
	return &InMemoryStore{votes: votes}
}

func (s *InMemoryStore) Tally(ctx context.Context, pollID string, dims []attmodels.Dimension) (models.Tally, error) {
	votes, err := s.votes.VotesForPoll(ctx, pollID)
	if err != nil {
		return models.Tally{}, fmt.Errorf("list votes: %w", err)
	}
	return tally(votes, dims), nil
}

func tally(votes []votemodels.Vote, dims []attmodels.Dimension) models.Tally {
	t := models.Tally{
		Total:   len(votes),
		Options: make(map[string]int),
		Cohorts: make(map[attmodels.Dimension]map[string]int, len(dims)),
	}
	for _, dim := range dims {
		t.Cohorts[dim] = make(map[string]int)
	}
	for _, v := range votes {
		t.Options[v.OptionID]++
		for _, dim := range dims {
			if val := v.Snapshot.Value(dim); val != "" {
				t.Cohorts[dim][val]++
			}
		}
	}
	return t
}
