package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limitermemory "github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// LimiterCounter adapts a ulule/limiter store to the Counter interface.
type LimiterCounter struct {
	Store limiter.Store
}

// NewLimiterMemoryCounter uses the limiter in-memory driver.
func NewLimiterMemoryCounter(prefix string, cleanup time.Duration) *LimiterCounter {
	return &LimiterCounter{Store: limitermemory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          prefix,
		CleanUpInterval: cleanup,
	})}
}

// NewLimiterRedisCounter uses the limiter Redis driver.
func NewLimiterRedisCounter(rdb *redis.Client, prefix string) (*LimiterCounter, error) {
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return nil, err
	}
	return &LimiterCounter{Store: store}, nil
}

// Allow implements Counter.
func (l *LimiterCounter) Allow(ctx context.Context, key string, window time.Duration, max int) (Decision, error) {
	if l.Store == nil || max <= 0 || window <= 0 {
		return disabled(time.Now(), window, max), nil
	}
	res, err := l.Store.Get(ctx, key, limiter.Rate{Period: window, Limit: int64(max)})
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !res.Reached,
		Limit:     int(res.Limit),
		Remaining: int(res.Remaining),
		Reset:     time.Unix(res.Reset, 0),
		Tracked:   true,
	}, nil
}
