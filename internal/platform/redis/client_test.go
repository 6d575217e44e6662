package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anonpoll/internal/platform/config"
)

func TestConnectWithoutURL(t *testing.T) {
	c, err := Connect(context.Background(), config.RedisConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestConnectRejectsMalformedURL(t *testing.T) {
	_, err := Connect(context.Background(), config.RedisConfig{URL: "memcached://nope"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis url")
}

func TestConnectGivesUpWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := config.RedisConfig{URL: "redis://127.0.0.1:1/0", DialTimeout: 50 * time.Millisecond}
	_, err := Connect(ctx, cfg, nil)
	require.Error(t, err)
}
