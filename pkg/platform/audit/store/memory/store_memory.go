package memory

import (
	"context"
	"sort"
	"sync"

	audit "anonpoll/pkg/platform/audit"
)

// InMemoryStore keeps audit events in process memory. Development and tests only.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListRecent returns up to limit events, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, 0, min(limit, len(s.events)))
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

// SummarizeSecurity aggregates security events by action and severity.
func (s *InMemoryStore) SummarizeSecurity(_ context.Context, f audit.SummaryFilter) ([]audit.Cell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct {
		action   string
		severity audit.Severity
	}
	cells := make(map[key]*audit.Cell)
	for _, e := range s.events {
		if e.Category != audit.CategorySecurity || !matches(e, f) {
			continue
		}
		k := key{e.Action, e.Severity}
		c, ok := cells[k]
		if !ok {
			c = &audit.Cell{Action: e.Action, Severity: e.Severity, FirstSeen: e.Timestamp, LastSeen: e.Timestamp}
			cells[k] = c
		}
		c.Count++
		if e.Timestamp.Before(c.FirstSeen) {
			c.FirstSeen = e.Timestamp
		}
		if e.Timestamp.After(c.LastSeen) {
			c.LastSeen = e.Timestamp
		}
	}

	out := make([]audit.Cell, 0, len(cells))
	for _, c := range cells {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Action != out[j].Action {
			return out[i].Action < out[j].Action
		}
		return out[i].Severity < out[j].Severity
	})
	return out, nil
}

func matches(e audit.Event, f audit.SummaryFilter) bool {
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.Timestamp.Before(f.Until) {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.PollID != "" && e.PollID != f.PollID {
		return false
	}
	return true
}
