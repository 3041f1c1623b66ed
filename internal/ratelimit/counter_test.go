package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestMemoryCounterFixedWindow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := NewMemoryCounter(10)
	c.now = clock.Now
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := c.Allow(ctx, "k", time.Minute, 3)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, 2-i, d.Remaining)
	}
	d, _ := c.Allow(ctx, "k", time.Minute, 3)
	require.False(t, d.Allowed)
	require.Equal(t, clock.Now().Add(time.Minute), d.Reset)

	clock.Advance(time.Minute)
	d, _ = c.Allow(ctx, "k", time.Minute, 3)
	require.True(t, d.Allowed, "window reset")
}

func TestMemoryCounterSweepsAndFailsOpen(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := NewMemoryCounter(2)
	c.now = clock.Now
	ctx := context.Background()

	_, _ = c.Allow(ctx, "a", time.Minute, 1)
	_, _ = c.Allow(ctx, "b", time.Minute, 1)
	d, err := c.Allow(ctx, "c", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.False(t, d.Tracked, "full counter admits untracked")
	require.False(t, d.Disabled)
	require.Equal(t, 2, c.Len())

	clock.Advance(2 * time.Minute)
	d, _ = c.Allow(ctx, "c", time.Minute, 1)
	require.True(t, d.Tracked, "expired entries swept to make room")
	require.Equal(t, 1, c.Len())
}

func TestCountersReportDisabledLimits(t *testing.T) {
	ctx := context.Background()
	counters := map[string]Counter{
		"memory":  NewMemoryCounter(1),
		"redis":   NewRedisCounter(nil, "ratelimit:"),
		"limiter": &LimiterCounter{},
	}
	for name, c := range counters {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				d, err := c.Allow(ctx, fmt.Sprintf("k%d", i), time.Minute, 0)
				require.NoError(t, err)
				require.True(t, d.Allowed)
				require.True(t, d.Disabled)
				require.True(t, d.Tracked, "a disabled limit is not a full store")
			}
		})
	}
}

func TestMemoryCounterConcurrentIncrementsAreAtomic(t *testing.T) {
	c := NewMemoryCounter(10)
	ctx := context.Background()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := c.Allow(ctx, "shared", time.Hour, 20)
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 20, allowed)
}

func TestRedisCounterFixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 10, 0, time.UTC)}
	c := NewRedisCounter(client, "rl:")
	c.now = clock.Now
	ctx := context.Background()

	d, err := c.Allow(ctx, "k", time.Minute, 2)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, time.Date(2024, 1, 1, 12, 1, 0, 0, time.UTC), d.Reset.UTC())

	_, _ = c.Allow(ctx, "k", time.Minute, 2)
	d, _ = c.Allow(ctx, "k", time.Minute, 2)
	require.False(t, d.Allowed)

	bucket := clock.Now().UnixMilli() / time.Minute.Milliseconds()
	require.True(t, mr.Exists(fmt.Sprintf("rl:k:%d", bucket)))
	require.Greater(t, mr.TTL(fmt.Sprintf("rl:k:%d", bucket)), time.Duration(0))

	clock.Advance(time.Minute)
	d, _ = c.Allow(ctx, "k", time.Minute, 2)
	require.True(t, d.Allowed, "next window starts fresh")
}

func TestLimiterCounterMemoryStore(t *testing.T) {
	c := NewLimiterMemoryCounter("test", time.Minute)
	ctx := context.Background()

	d, err := c.Allow(ctx, "k", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, 1, d.Limit)

	d, err = c.Allow(ctx, "k", time.Minute, 1)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 0, d.Remaining)
}

func TestLimiterCounterRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c, err := NewLimiterRedisCounter(client, "limiter")
	require.NoError(t, err)

	d, err := c.Allow(context.Background(), "k", time.Minute, 5)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, 4, d.Remaining)
}
