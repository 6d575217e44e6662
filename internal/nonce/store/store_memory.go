package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemoryStore is a single-process nonce store. Development and tests only:
// tokens are not shared between instances.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]time.Time), now: time.Now}
}

func (s *InMemoryStore) Put(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if exp, ok := s.entries[key]; ok && now.Before(exp) {
		return fmt.Errorf("store nonce: %w", ErrCollision)
	}
	s.entries[key] = now.Add(ttl)
	s.sweepLocked(now)
	return nil
}

// Consume checks and deletes under one lock.
func (s *InMemoryStore) Consume(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	delete(s.entries, key)
	return s.now().Before(exp), nil
}

// sweepLocked drops expired entries so abandoned challenges do not accumulate.
func (s *InMemoryStore) sweepLocked(now time.Time) {
	if len(s.entries) < 1024 {
		return
	}
	for k, exp := range s.entries {
		if !now.Before(exp) {
			delete(s.entries, k)
		}
	}
}
