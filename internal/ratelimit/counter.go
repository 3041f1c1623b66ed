package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of registering one request against a key.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
	// Tracked is false when the request was admitted without being counted
	// because a bounded store was full.
	Tracked bool
	// Disabled is true when no limit applies to the call.
	Disabled bool
}

// Counter registers requests in fixed windows. Counts reset at the window
// boundary, so a burst straddling two windows can admit up to twice the
// nominal rate.
type Counter interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (Decision, error)
}

func disabled(now time.Time, window time.Duration, max int) Decision {
	return Decision{Allowed: true, Limit: max, Remaining: max, Reset: now.Add(window), Tracked: true, Disabled: true}
}

func untracked(now time.Time, window time.Duration, max int) Decision {
	return Decision{Allowed: true, Limit: max, Remaining: max, Reset: now.Add(window)}
}

func decide(count int64, max int, reset time.Time) Decision {
	remaining := max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(max),
		Limit:     max,
		Remaining: remaining,
		Reset:     reset,
		Tracked:   true,
	}
}
