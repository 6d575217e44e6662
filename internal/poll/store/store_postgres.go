package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"anonpoll/internal/platform/postgres"
	"anonpoll/internal/poll/models"
	auditstore "anonpoll/pkg/platform/audit/store/postgres"
	"anonpoll/pkg/platform/sentinel"
	txcontext "anonpoll/pkg/platform/tx"
)

// PostgresStore persists polls and their options.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, p *models.Poll) error {
	return txcontext.Run(ctx, s.db, nil, func(ctx context.Context) error {
		exec := txcontext.Executor(ctx, s.db)
		regions := p.Audience.Regions
		if regions == nil {
			regions = []string{}
		}
		err := exec.QueryRowContext(ctx, `
			INSERT INTO polls (id, title, state, audience_gender, audience_regions)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at, updated_at
		`, p.ID, p.Title, string(p.State), p.Audience.Gender, pq.Array(regions)).Scan(&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			if postgres.IsUniqueViolation(err, "polls_pkey") {
				return fmt.Errorf("create poll %s: %w", p.ID, sentinel.ErrConflict)
			}
			return fmt.Errorf("insert poll: %w", err)
		}
		for i, o := range p.Options {
			if _, err := exec.ExecContext(ctx, `
				INSERT INTO poll_options (poll_id, id, label, position) VALUES ($1, $2, $3, $4)
			`, p.ID, o.ID, o.Label, i); err != nil {
				return fmt.Errorf("insert poll option: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Poll, error) {
	exec := txcontext.Executor(ctx, s.db)
	var p models.Poll
	var state string
	var regions pq.StringArray
	err := exec.QueryRowContext(ctx, `
		SELECT id, title, state, audience_gender, audience_regions, created_at, updated_at
		FROM polls WHERE id = $1
	`, id).Scan(&p.ID, &p.Title, &state, &p.Audience.Gender, &regions, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("poll %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select poll: %w", err)
	}
	p.State = models.State(state)
	if len(regions) > 0 {
		p.Audience.Regions = []string(regions)
	}

	rows, err := exec.QueryContext(ctx, `
		SELECT id, label FROM poll_options WHERE poll_id = $1 ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("select poll options: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var o models.Option
		if err := rows.Scan(&o.ID, &o.Label); err != nil {
			return nil, fmt.Errorf("scan poll option: %w", err)
		}
		p.Options = append(p.Options, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate poll options: %w", err)
	}
	return &p, nil
}

// Transition updates the state with a compare-and-set on from. Closing
// transitions enqueue a lifecycle event in the same transaction.
func (s *PostgresStore) Transition(ctx context.Context, id string, from, to models.State) error {
	return txcontext.Run(ctx, s.db, nil, func(ctx context.Context) error {
		exec := txcontext.Executor(ctx, s.db)
		res, err := exec.ExecContext(ctx, `
			UPDATE polls SET state = $3, updated_at = NOW() WHERE id = $1 AND state = $2
		`, id, string(from), string(to))
		if err != nil {
			return fmt.Errorf("update poll state: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update poll state: %w", err)
		}
		if n == 0 {
			var exists bool
			if err := exec.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM polls WHERE id = $1)`, id).Scan(&exists); err != nil {
				return fmt.Errorf("check poll: %w", err)
			}
			if !exists {
				return fmt.Errorf("poll %s: %w", id, sentinel.ErrNotFound)
			}
			return fmt.Errorf("poll %s changed state: %w", id, sentinel.ErrConflict)
		}
		if !to.Closed() {
			return nil
		}
		payload, err := json.Marshal(models.LifecycleEvent{PollID: id, State: to, OccurredAt: time.Now().UTC()})
		if err != nil {
			return fmt.Errorf("marshal lifecycle event: %w", err)
		}
		return auditstore.Enqueue(ctx, s.db, auditstore.AggregatePollLifecycle, id, "poll_"+string(to), payload)
	})
}
