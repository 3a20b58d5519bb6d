package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gus-bms/db-checker/internal/model"
)

// acquireScript renews when the stored owner matches, otherwise claims only
// if the key is absent. Runs atomically on the Redis server.
var acquireScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == ARGV[1] then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return 1
end
if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2]) then
  return 1
end
return 0
`)

// RedisManager stores leases as plain keys with a millisecond TTL.
type RedisManager struct {
	client redis.Scripter
}

// NewRedisManager creates a lease manager backed by Redis.
func NewRedisManager(client redis.Scripter) *RedisManager {
	return &RedisManager{client: client}
}

// TryAcquireOrRenew implements Manager.
func (m *RedisManager) TryAcquireOrRenew(ctx context.Context, resourceKey, ownerID string, ttl time.Duration) (bool, error) {
	res, err := acquireScript.Run(ctx, m.client, []string{resourceKey}, ownerID, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("lease %s: %w: %w", resourceKey, model.ErrUnavailable, err)
	}
	return res == 1, nil
}
