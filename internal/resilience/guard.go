package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDownstreamUnavailable is returned when a dependency times out, fails or
// is short-circuited by its breaker.
var ErrDownstreamUnavailable = errors.New("downstream unavailable")

// Guard bounds calls to one dependency with a timeout and a circuit breaker.
type Guard struct {
	Target  string
	Timeout time.Duration
	Breaker *Breaker
	// Ignore marks errors that are answers rather than failures (not found,
	// validation). They are returned untouched and count as successes.
	Ignore func(error) bool
}

// NewGuard builds a guard with a breaker labelled after target.
func NewGuard(target string, timeout time.Duration, breaker *Breaker) Guard {
	if breaker != nil {
		breaker = breaker.WithTarget(target)
	}
	return Guard{Target: target, Timeout: timeout, Breaker: breaker}
}

// Do runs fn under the guard.
func (g Guard) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := Call(ctx, g, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call runs fn under the guard and returns its value. fn runs on its own
// goroutine so a callee that ignores cancellation cannot hold the caller past
// the timeout.
func Call[T any](ctx context.Context, g Guard, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if g.Breaker != nil && !g.Breaker.Allow(ctx) {
		DownstreamCalls.WithLabelValues(g.label(), "rejected").Inc()
		return zero, fmt.Errorf("%w: %s: %w", ErrDownstreamUnavailable, g.label(), ErrOpenCircuit)
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if g.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, g.Timeout)
	}
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		v, err := fn(callCtx)
		done <- result{v: v, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = result{err: callCtx.Err()}
	}
	DownstreamLatency.WithLabelValues(g.label()).Observe(float64(time.Since(start).Milliseconds()))

	switch {
	case res.err == nil:
		g.report(ctx, true)
		DownstreamCalls.WithLabelValues(g.label(), "ok").Inc()
		return res.v, nil
	case ctx.Err() != nil:
		// the caller gave up; that says nothing about the dependency
		g.release()
		return zero, ctx.Err()
	case g.Ignore != nil && g.Ignore(res.err):
		g.report(ctx, true)
		DownstreamCalls.WithLabelValues(g.label(), "ok").Inc()
		return zero, res.err
	case errors.Is(res.err, context.DeadlineExceeded):
		g.report(ctx, false)
		DownstreamCalls.WithLabelValues(g.label(), "timeout").Inc()
		return zero, fmt.Errorf("%w: %s timed out after %s", ErrDownstreamUnavailable, g.label(), g.Timeout)
	default:
		g.report(ctx, false)
		DownstreamCalls.WithLabelValues(g.label(), "error").Inc()
		return zero, fmt.Errorf("%w: %s: %w", ErrDownstreamUnavailable, g.label(), res.err)
	}
}

func (g Guard) report(ctx context.Context, ok bool) {
	if g.Breaker != nil {
		g.Breaker.Report(ctx, ok)
	}
}

// release frees a half-open probe slot without judging the dependency.
func (g Guard) release() {
	if g.Breaker == nil {
		return
	}
	g.Breaker.mu.Lock()
	g.Breaker.probing = false
	g.Breaker.mu.Unlock()
}

func (g Guard) label() string {
	if g.Target == "" {
		return "default"
	}
	return g.Target
}
