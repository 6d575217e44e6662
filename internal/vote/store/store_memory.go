package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"anonpoll/internal/vote/models"
	audit "anonpoll/pkg/platform/audit"
	"anonpoll/pkg/platform/sentinel"
)

// InMemoryStore commits votes under one lock so the nullifier check and the
// inserts are indivisible.
type InMemoryStore struct {
	mu         sync.RWMutex
	nullifiers map[string]struct{}
	votes      []models.Vote
	audit      audit.Store
}

func NewInMemory(auditStore audit.Store) *InMemoryStore {
	return &InMemoryStore{
		nullifiers: make(map[string]struct{}),
		audit:      auditStore,
	}
}

func (s *InMemoryStore) Commit(ctx context.Context, v models.Vote, nullifier string, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := v.PollID + "|" + nullifier
	if _, ok := s.nullifiers[key]; ok {
		return fmt.Errorf("nullifier for poll %s: %w", v.PollID, sentinel.ErrConflict)
	}
	if s.audit != nil {
		if err := s.audit.Append(ctx, event); err != nil {
			return fmt.Errorf("append audit event: %w", err)
		}
	}
	s.nullifiers[key] = struct{}{}
	v.CreatedAt = v.CreatedAt.Truncate(models.LedgerPrecision)
	s.votes = append(s.votes, v)
	return nil
}

// VotesForPoll returns a consistent copy of a poll's votes.
func (s *InMemoryStore) VotesForPoll(_ context.Context, pollID string) ([]models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Vote
	for _, v := range s.votes {
		if v.PollID == pollID {
			v.Snapshot.RegionCodes = slices.Clone(v.Snapshot.RegionCodes)
			out = append(out, v)
		}
	}
	return out, nil
}
