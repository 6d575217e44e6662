package overlap

import (
	"context"
	"sync"

	attmodels "anonpoll/internal/attestation/models"
)

type record struct {
	mu   sync.Mutex
	dims []attmodels.Dimension
}

// MemoryGuard keeps records in process memory with one lock per poll, so
// different polls never contend. Records are lost on restart.
type MemoryGuard struct {
	mu      sync.Mutex
	records map[string]*record
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{records: make(map[string]*record)}
}

func (g *MemoryGuard) recordFor(pollID string) *record {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.records[pollID]
	if !ok {
		r = &record{}
		g.records[pollID] = r
	}
	return r
}

func (g *MemoryGuard) CheckAndRecord(_ context.Context, pollID string, dims []attmodels.Dimension) (bool, error) {
	r := g.recordFor(pollID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if Compare(r.dims, dims).Denied() {
		return false, nil
	}
	r.dims = decode(encode(dims))
	return true, nil
}

func (g *MemoryGuard) Reset(_ context.Context, pollID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, pollID)
	return nil
}
