package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "nonce:"

// consumeScript checks and deletes in one server-side step. Redis runs
// scripts serially, so of N concurrent callers exactly one gets 1.
var consumeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`)

// RedisStore keeps nonces as TTL'd keys shared by every instance.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Put stores key with ttl. SET NX refuses to resurrect a token that is still live.
func (s *RedisStore) Put(ctx context.Context, key string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("store nonce: %w", err)
	}
	if !ok {
		return fmt.Errorf("store nonce: %w", ErrCollision)
	}
	return nil
}

// Consume reports whether this call removed key. Expired keys are already
// gone from the keyspace and yield false.
func (s *RedisStore) Consume(ctx context.Context, key string) (bool, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{keyPrefix + key}).Int()
	if err != nil {
		return false, fmt.Errorf("consume nonce: %w", err)
	}
	return n == 1, nil
}
