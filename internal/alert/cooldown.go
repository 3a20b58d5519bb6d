package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gus-bms/db-checker/internal/model"
)

// DefaultCooldownPrefix prefixes every cooldown mark.
const DefaultCooldownPrefix = "noti:db:"

// Cooldown records that (key, level) was notified. Mark returns true only
// for the caller that created the mark; it expires after ttl.
type Cooldown interface {
	Mark(ctx context.Context, key string, level model.Level, ttl time.Duration) (bool, error)
}

// RedisCooldown keeps marks as SET NX EX keys shared by every instance.
type RedisCooldown struct {
	client redis.Cmdable
	prefix string
}

// NewRedisCooldown creates a cooldown store. An empty prefix uses
// DefaultCooldownPrefix.
func NewRedisCooldown(client redis.Cmdable, prefix string) *RedisCooldown {
	if prefix == "" {
		prefix = DefaultCooldownPrefix
	}
	return &RedisCooldown{client: client, prefix: prefix}
}

// MarkKey returns the Redis key for (key, level).
func (c *RedisCooldown) MarkKey(key string, level model.Level) string {
	return c.prefix + key + ":" + string(level)
}

// Mark sets the mark if absent.
func (c *RedisCooldown) Mark(ctx context.Context, key string, level model.Level, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.MarkKey(key, level), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: cooldown mark: %w", model.ErrUnavailable, err)
	}
	return ok, nil
}
