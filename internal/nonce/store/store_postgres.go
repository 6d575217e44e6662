package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"anonpoll/internal/platform/postgres"
)

// PostgresStore backs nonces with a table for deployments without Redis.
// Consume is one DELETE ... RETURNING, so row locking gives the same
// exclusivity as a Redis DEL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, key string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nonces (key, expires_at)
		VALUES ($1, NOW() + $2 * INTERVAL '1 millisecond')
	`, key, ttl.Milliseconds())
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return fmt.Errorf("store nonce: %w", ErrCollision)
		}
		return fmt.Errorf("store nonce: %w", err)
	}
	return nil
}

func (s *PostgresStore) Consume(ctx context.Context, key string) (bool, error) {
	var expired bool
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM nonces WHERE key = $1
		RETURNING expires_at <= NOW()
	`, key).Scan(&expired)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume nonce: %w", err)
	}
	return !expired, nil
}

// PurgeExpired removes expired rows; Redis does this itself.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM nonces WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("purge nonces: %w", err)
	}
	return res.RowsAffected()
}
