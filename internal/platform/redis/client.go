// Package redis opens the shared store behind nonce consumption and the
// disclosure query records.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"anonpoll/internal/platform/config"
)

// startupAttempts bounds how long Connect waits for a cold Redis.
const startupAttempts = 5

// Client is the process-wide Redis handle.
type Client struct {
	*redis.Client
	logger *slog.Logger
}

// Connect returns nil, nil when no URL is configured so callers can fall
// back to process-local stores.
func Connect(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	c := &Client{Client: redis.NewClient(opts), logger: logger}

	attempt := 0
	ping := func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout+time.Second)
		defer cancel()
		if err := c.Ping(pingCtx).Err(); err != nil {
			c.logger.WarnContext(ctx, "redis not reachable yet", "attempt", attempt, "error", err)
			return err
		}
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), startupAttempts-1), ctx)
	if err := backoff.Retry(ping, b); err != nil {
		_ = c.Client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	c.logger.InfoContext(ctx, "redis connected", "addr", opts.Addr, "db", opts.DB)
	return c, nil
}

// Health reports whether the server answers a ping.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
