package overlap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	attmodels "anonpoll/internal/attestation/models"
)

const keyPrefix = "disclosure:dims:"

// checkAndRecordScript compares ARGV[1] with the stored set and overwrites it
// unless one is a strict subset of the other. Both sets are sorted comma
// lists. Returns 1 when allowed.
var checkAndRecordScript = redis.NewScript(`
local prev = redis.call("GET", KEYS[1])
if prev then
  local p, n = {}, {}
  local pc, nc = 0, 0
  for d in string.gmatch(prev, "[^,]+") do p[d] = true; pc = pc + 1 end
  for d in string.gmatch(ARGV[1], "[^,]+") do n[d] = true; nc = nc + 1 end
  if pc > 0 and nc > 0 and pc ~= nc then
    local small, large = n, p
    if nc > pc then small, large = p, n end
    local nested = true
    for d in pairs(small) do
      if not large[d] then nested = false; break end
    end
    if nested then return 0 end
  end
end
if tonumber(ARGV[2]) > 0 then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
else
  redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

// RedisGuard keeps one record per poll in Redis. The script runs atomically,
// so the check and the overwrite cannot interleave across instances.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard stores records for ttl; zero keeps them until Reset.
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) CheckAndRecord(ctx context.Context, pollID string, dims []attmodels.Dimension) (bool, error) {
	n, err := checkAndRecordScript.Run(ctx, g.client,
		[]string{keyPrefix + pollID},
		encode(dims), g.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("check dimension record: %w", err)
	}
	return n == 1, nil
}

func (g *RedisGuard) Reset(ctx context.Context, pollID string) error {
	if err := g.client.Del(ctx, keyPrefix+pollID).Err(); err != nil {
		return fmt.Errorf("reset dimension record: %w", err)
	}
	return nil
}
