//go:build integration

// Package containers starts shared infrastructure for integration suites.
// Containers are started once per test binary and reaped by Ryuk.
package containers

import (
	"context"
	"sync"
	"testing"
	"time"
)

const startTimeout = 2 * time.Minute

// Manager lazily starts one container of each kind.
type Manager struct {
	redisOnce    sync.Once
	redis        *RedisContainer
	redisErr     error
	postgresOnce sync.Once
	postgres     *PostgresContainer
	postgresErr  error
	redpandaOnce sync.Once
	redpanda     *RedpandaContainer
	redpandaErr  error
}

var (
	manager     *Manager
	managerOnce sync.Once
)

func GetManager() *Manager {
	managerOnce.Do(func() { manager = &Manager{} })
	return manager
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	m.redisOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		m.redis, m.redisErr = newRedisContainer(ctx)
	})
	if m.redisErr != nil {
		t.Fatalf("start redis container: %v", m.redisErr)
	}
	return m.redis
}

func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	m.postgresOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		m.postgres, m.postgresErr = newPostgresContainer(ctx)
	})
	if m.postgresErr != nil {
		t.Fatalf("start postgres container: %v", m.postgresErr)
	}
	return m.postgres
}

func (m *Manager) GetRedpanda(t *testing.T) *RedpandaContainer {
	t.Helper()
	m.redpandaOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		m.redpanda, m.redpandaErr = newRedpandaContainer(ctx)
	})
	if m.redpandaErr != nil {
		t.Fatalf("start redpanda container: %v", m.redpandaErr)
	}
	return m.redpanda
}
