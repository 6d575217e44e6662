//go:build integration

package containers

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"anonpoll/internal/platform/postgres"
)

type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

func newPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("anonpoll"),
		tcpostgres.WithUsername("anonpoll"),
		tcpostgres.WithPassword("anonpoll"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, err
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}
	return &PostgresContainer{Container: container, DSN: dsn, DB: db}, nil
}

// Truncate empties every table between tests.
func (p *PostgresContainer) Truncate(t *testing.T) {
	t.Helper()
	_, err := p.DB.Exec(`TRUNCATE votes, nullifiers, poll_options, polls, audit_events, outbox, nonces CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}
