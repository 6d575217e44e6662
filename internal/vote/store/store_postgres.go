package store

import (
	"context"
	"database/sql"
	"fmt"

	"anonpoll/internal/platform/postgres"
	"anonpoll/internal/vote/models"
	audit "anonpoll/pkg/platform/audit"
	"anonpoll/pkg/platform/sentinel"
	txcontext "anonpoll/pkg/platform/tx"
)

// nullifierConstraint is the primary key of the nullifiers table.
const nullifierConstraint = "nullifiers_pkey"

// PostgresStore writes the nullifier, the vote and its audit record in one
// transaction. The primary key on nullifiers is the only duplicate check.
type PostgresStore struct {
	db    *sql.DB
	audit audit.Store
}

// NewPostgres takes an audit store that joins the transaction in ctx.
func NewPostgres(db *sql.DB, auditStore audit.Store) *PostgresStore {
	return &PostgresStore{db: db, audit: auditStore}
}

func (s *PostgresStore) Commit(ctx context.Context, v models.Vote, nullifier string, event audit.Event) error {
	return txcontext.Run(ctx, s.db, nil, func(ctx context.Context) error {
		exec := txcontext.Executor(ctx, s.db)

		if _, err := exec.ExecContext(ctx, `
			INSERT INTO nullifiers (poll_id, nullifier_hash) VALUES ($1, $2)
		`, v.PollID, nullifier); err != nil {
			if postgres.IsUniqueViolation(err, nullifierConstraint) {
				return fmt.Errorf("nullifier for poll %s: %w", v.PollID, sentinel.ErrConflict)
			}
			return fmt.Errorf("insert nullifier: %w", err)
		}

		if _, err := exec.ExecContext(ctx, `
			INSERT INTO votes (id, poll_id, option_id, gender, age_bucket, region, citizenship, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			v.ID,
			v.PollID,
			v.OptionID,
			v.Snapshot.Gender,
			v.Snapshot.AgeBucket,
			v.Snapshot.PrimaryRegion(),
			v.Snapshot.Citizenship,
			v.CreatedAt.UTC().Truncate(models.LedgerPrecision),
		); err != nil {
			return fmt.Errorf("insert vote: %w", err)
		}

		if err := s.audit.Append(ctx, event); err != nil {
			return fmt.Errorf("append audit event: %w", err)
		}
		return nil
	})
}
