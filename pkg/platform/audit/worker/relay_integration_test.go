//go:build integration

package worker_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"anonpoll/internal/platform/kafka"
	"anonpoll/internal/platform/kafka/consumer"
	"anonpoll/internal/platform/kafka/producer"
	pollmodels "anonpoll/internal/poll/models"
	pollstore "anonpoll/internal/poll/store"
	audit "anonpoll/pkg/platform/audit"
	auditpg "anonpoll/pkg/platform/audit/store/postgres"
	"anonpoll/pkg/platform/audit/worker"
	"anonpoll/pkg/testutil/containers"
)

// TestRelayRoutesLifecycleEvents runs the outbox through a real broker: audit
// rows land on the audit topic and poll closures on the lifecycle topic.
func TestRelayRoutesLifecycleEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pg := containers.GetManager().GetPostgres(t)
	rp := containers.GetManager().GetRedpanda(t)
	pg.Truncate(t)

	const auditTopic, lifecycleTopic = "it.audit", "it.poll-lifecycle"
	prod, err := producer.New(rp.Brokers)
	require.NoError(t, err)
	defer prod.Close()
	require.NoError(t, kafka.EnsureTopics(ctx, prod.Client(), 1, 1, auditTopic, lifecycleTopic))

	auditStore := auditpg.New(pg.DB)
	polls := pollstore.NewPostgres(pg.DB)
	require.NoError(t, polls.Create(ctx, &pollmodels.Poll{
		ID:      "p1",
		Title:   "Poll",
		State:   pollmodels.StateActive,
		Options: []pollmodels.Option{{ID: "a", Label: "A"}, {ID: "b", Label: "B"}},
	}))
	require.NoError(t, polls.Transition(ctx, "p1", pollmodels.StateActive, pollmodels.StateEnded))

	ev := audit.Event{Action: string(audit.EventVoteRejected), Severity: audit.SeverityWarning, PollID: "p1"}
	ev.Normalize(time.Now())
	require.NoError(t, auditStore.Append(ctx, ev))

	relay := worker.NewRelay(auditStore, prod, auditTopic, time.Second, 10, logger).
		Route(auditpg.AggregatePollLifecycle, lifecycleTopic)
	n, err := relay.RelayOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = relay.RelayOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "published rows are not relayed twice")

	var mu sync.Mutex
	got := map[string][]byte{}
	done := make(chan struct{})
	cctx, stop := context.WithCancel(ctx)
	defer stop()
	cons, err := consumer.New(rp.Brokers, "it-relay", []string{auditTopic, lifecycleTopic},
		consumer.HandlerFunc(func(_ context.Context, msg *consumer.Message) error {
			mu.Lock()
			defer mu.Unlock()
			got[msg.Topic] = msg.Value
			if len(got) == 2 {
				close(done)
			}
			return nil
		}), logger)
	require.NoError(t, err)
	go func() { _ = cons.Run(cctx) }()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("timed out waiting for relayed messages")
	}

	mu.Lock()
	defer mu.Unlock()
	var lifecycle pollmodels.LifecycleEvent
	require.NoError(t, json.Unmarshal(got[lifecycleTopic], &lifecycle))
	require.Equal(t, "p1", lifecycle.PollID)
	require.Equal(t, pollmodels.StateEnded, lifecycle.State)
	require.Contains(t, string(got[auditTopic]), `"action":"vote_rejected"`)
}
