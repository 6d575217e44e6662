//go:build integration

package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	attmodels "anonpoll/internal/attestation/models"
	"anonpoll/internal/vote/models"
	audit "anonpoll/pkg/platform/audit"
	auditpg "anonpoll/pkg/platform/audit/store/postgres"
	"anonpoll/pkg/platform/sentinel"
	"anonpoll/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = NewPostgres(s.postgres.DB, auditpg.New(s.postgres.DB))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.postgres.Truncate(s.T())
	_, err := s.postgres.DB.Exec(`
		INSERT INTO polls (id, title, state) VALUES ('p1', 'Poll', 'active');
		INSERT INTO poll_options (poll_id, id, label) VALUES ('p1', 'a', 'A'), ('p1', 'b', 'B');
	`)
	s.Require().NoError(err)
}

func newVote(option string) models.Vote {
	return models.Vote{
		ID:        uuid.New(),
		PollID:    "p1",
		OptionID:  option,
		Snapshot:  attmodels.DemographicSnapshot{Gender: "f", RegionCodes: []string{"north", "east"}},
		CreatedAt: time.Date(2026, 3, 4, 10, 41, 17, 0, time.UTC),
	}
}

func committedEvent() audit.Event {
	e := audit.Event{Action: string(audit.EventVoteCommitted), PollID: "p1"}
	e.Normalize(time.Now())
	return e
}

func (s *PostgresStoreSuite) count(query string) int {
	var n int
	s.Require().NoError(s.postgres.DB.QueryRow(query).Scan(&n))
	return n
}

func (s *PostgresStoreSuite) TestCommitWritesLedgerAndAudit() {
	s.Require().NoError(s.store.Commit(context.Background(), newVote("a"), "n1", committedEvent()))

	var region string
	var createdAt time.Time
	s.Require().NoError(s.postgres.DB.QueryRow(`SELECT region, created_at FROM votes`).Scan(&region, &createdAt))
	s.Equal("north", region)
	s.True(createdAt.Equal(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)), "created_at is truncated to the hour")

	s.Equal(1, s.count(`SELECT COUNT(*) FROM nullifiers`))
	s.Equal(1, s.count(`SELECT COUNT(*) FROM audit_events WHERE action = 'vote_committed'`))
	s.Equal(1, s.count(`SELECT COUNT(*) FROM outbox WHERE aggregate_type = 'audit'`))
}

func (s *PostgresStoreSuite) TestConcurrentDuplicateNullifier() {
	const goroutines = 32
	var wg sync.WaitGroup
	var ok, conflicts atomic.Int32
	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := s.store.Commit(context.Background(), newVote("a"), "same", committedEvent())
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			default:
				s.Failf("unexpected error", "%v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	s.Equal(int32(1), ok.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
	s.Equal(1, s.count(`SELECT COUNT(*) FROM votes`))
	s.Equal(1, s.count(`SELECT COUNT(*) FROM audit_events`), "rolled back commits leave no audit rows")
}

func (s *PostgresStoreSuite) TestSameNullifierOtherPoll() {
	_, err := s.postgres.DB.Exec(`
		INSERT INTO polls (id, title, state) VALUES ('p2', 'Poll 2', 'active');
		INSERT INTO poll_options (poll_id, id, label) VALUES ('p2', 'a', 'A');
	`)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Commit(context.Background(), newVote("a"), "n1", committedEvent()))
	other := newVote("a")
	other.PollID = "p2"
	s.NoError(s.store.Commit(context.Background(), other, "n1", committedEvent()))
}

func (s *PostgresStoreSuite) TestFailedInsertRollsBackNullifier() {
	err := s.store.Commit(context.Background(), newVote("missing-option"), "n1", committedEvent())
	s.Require().Error(err)
	s.Equal(0, s.count(`SELECT COUNT(*) FROM nullifiers`), "the nullifier must not outlive a failed commit")

	s.NoError(s.store.Commit(context.Background(), newVote("a"), "n1", committedEvent()))
}
