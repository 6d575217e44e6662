package store

import (
	"context"
	"database/sql"
	"fmt"

	attmodels "anonpoll/internal/attestation/models"
	"anonpoll/internal/disclosure/models"
	txcontext "anonpoll/pkg/platform/tx"
)

// dimensionColumns whitelists the votes columns a breakdown may group by.
var dimensionColumns = map[attmodels.Dimension]string{
	attmodels.DimensionGender:      "gender",
	attmodels.DimensionAgeBucket:   "age_bucket",
	attmodels.DimensionRegion:      "region",
	attmodels.DimensionCitizenship: "citizenship",
}

// PostgresStore reads tallies from the vote ledger. All counts for one
// request come from a single repeatable-read snapshot, so the total always
// equals the sum of option counts.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Tally(ctx context.Context, pollID string, dims []attmodels.Dimension) (models.Tally, error) {
	t := models.Tally{
		Options: make(map[string]int),
		Cohorts: make(map[attmodels.Dimension]map[string]int, len(dims)),
	}
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := txcontext.Run(ctx, s.db, opts, func(ctx context.Context) error {
		exec := txcontext.Executor(ctx, s.db)

		rows, err := exec.QueryContext(ctx, `
			SELECT option_id, COUNT(*) FROM votes WHERE poll_id = $1 GROUP BY option_id
		`, pollID)
		if err != nil {
			return fmt.Errorf("count options: %w", err)
		}
		if err := scanCounts(rows, t.Options); err != nil {
			return fmt.Errorf("count options: %w", err)
		}
		for _, n := range t.Options {
			t.Total += n
		}

		for _, dim := range dims {
			col, ok := dimensionColumns[dim]
			if !ok {
				return fmt.Errorf("unknown dimension %q", dim)
			}
			cohorts := make(map[string]int)
			rows, err := exec.QueryContext(ctx, `
				SELECT `+col+`, COUNT(*) FROM votes
				WHERE poll_id = $1 AND `+col+` <> ''
				GROUP BY `+col,
				pollID)
			if err != nil {
				return fmt.Errorf("count %s cohorts: %w", dim, err)
			}
			if err := scanCounts(rows, cohorts); err != nil {
				return fmt.Errorf("count %s cohorts: %w", dim, err)
			}
			t.Cohorts[dim] = cohorts
		}
		return nil
	})
	if err != nil {
		return models.Tally{}, err
	}
	return t, nil
}

func scanCounts(rows *sql.Rows, into map[string]int) error {
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}
