package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter shares fixed-window counts across processes. Each window gets
// its own key, incremented and given a TTL in one transaction.
type RedisCounter struct {
	Client *redis.Client
	Prefix string
	now    func() time.Time
}

// NewRedisCounter builds a RedisCounter with the given key prefix.
func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	return &RedisCounter{Client: client, Prefix: prefix, now: time.Now}
}

// Allow implements Counter.
func (c *RedisCounter) Allow(ctx context.Context, key string, window time.Duration, max int) (Decision, error) {
	now := time.Now()
	if c.now != nil {
		now = c.now()
	}
	if c.Client == nil || max <= 0 || window < time.Millisecond {
		return disabled(now, window, max), nil
	}

	bucket := now.UnixMilli() / window.Milliseconds()
	start := time.UnixMilli(bucket * window.Milliseconds())
	reset := start.Add(window)
	redisKey := c.Prefix + key + ":" + strconv.FormatInt(bucket, 10)

	pipe := c.Client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}
	return decide(incr.Val(), max, reset), nil
}
