package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "anonpoll/pkg/platform/audit"
	"anonpoll/pkg/platform/audit/store/memory"
	"anonpoll/pkg/requestcontext"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		Action:   string(audit.EventVoteRejected),
		Severity: audit.SeverityWarning,
		PollID:   "poll-1",
	})
	require.NoError(t, err)

	events, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategorySecurity, events[0].Category)
	assert.Equal(t, audit.SeverityWarning, events[0].Severity)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{
			Action: string(audit.EventCredentialIssued),
		}))
	}
	pub.Close()

	events, err := store.ListRecent(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_BufferFull_DoesNotBlock(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pub.Emit(context.Background(), audit.Event{Action: string(audit.EventVoteDuplicate)})
		}()
	}
	wg.Wait()
}

func TestPublisher_EnrichesFromContext(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), fixed)
	ctx = requestcontext.WithRequestID(ctx, "req-9")
	ctx = requestcontext.WithClientIP(ctx, "198.51.100.4")

	require.NoError(t, pub.Emit(ctx, audit.Event{Action: string(audit.EventNonceRejected)}))

	events, err := store.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, fixed, events[0].Timestamp)
	assert.Equal(t, "req-9", events[0].RequestID)
	assert.Equal(t, "198.51.100.4", events[0].IP)
	assert.Equal(t, audit.SeverityInfo, events[0].Severity)
}

func TestPublisher_LedgerEventsCarryNoIP(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	ctx := requestcontext.WithClientIP(context.Background(), "198.51.100.4")
	require.NoError(t, pub.Emit(ctx, audit.Event{Action: string(audit.EventVoteCommitted)}))

	events, _ := store.ListRecent(ctx, 1)
	require.Len(t, events, 1)
	assert.Empty(t, events[0].IP)
}

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("db down") }

func TestPublisher_PropagatesSyncErrors(t *testing.T) {
	pub := NewPublisher(failingStore{})
	err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventVoteRejected)})
	require.Error(t, err)
}

func TestPublisher_NilIsNoop(t *testing.T) {
	var pub *Publisher
	assert.NoError(t, pub.Emit(context.Background(), audit.Event{}))
	pub.Close()
}
