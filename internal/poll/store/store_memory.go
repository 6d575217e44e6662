package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"anonpoll/internal/poll/models"
	"anonpoll/pkg/platform/sentinel"
)

// InMemoryStore keeps polls in a map. Returned polls are copies.
type InMemoryStore struct {
	mu    sync.RWMutex
	polls map[string]models.Poll
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{polls: make(map[string]models.Poll)}
}

func (s *InMemoryStore) Create(_ context.Context, p *models.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.polls[p.ID]; ok {
		return fmt.Errorf("create poll %s: %w", p.ID, sentinel.ErrConflict)
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.polls[p.ID] = clone(*p)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*models.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.polls[id]
	if !ok {
		return nil, fmt.Errorf("poll %s: %w", id, sentinel.ErrNotFound)
	}
	c := clone(p)
	return &c, nil
}

// Transition moves id from one state to another, failing with ErrConflict
// when the current state is not from.
func (s *InMemoryStore) Transition(_ context.Context, id string, from, to models.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[id]
	if !ok {
		return fmt.Errorf("poll %s: %w", id, sentinel.ErrNotFound)
	}
	if p.State != from {
		return fmt.Errorf("poll %s is %s: %w", id, p.State, sentinel.ErrConflict)
	}
	p.State = to
	p.UpdatedAt = time.Now()
	s.polls[id] = p
	return nil
}

func clone(p models.Poll) models.Poll {
	p.Options = slices.Clone(p.Options)
	p.Audience.Regions = slices.Clone(p.Audience.Regions)
	return p
}
