package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/cabinet-quote/internal/common"
	"github.com/noah-isme/cabinet-quote/internal/obs"
)

// Config describes how to derive a rate limit key and thresholds.
type Config struct {
	// Route names the limited endpoint; it is appended to the client identity.
	Route  string
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

func (c Config) key(r *http.Request) string {
	if c.Key != nil {
		return c.Key(r)
	}
	route := c.Route
	if route == "" {
		route = r.URL.Path
	}
	return common.ClientIdentity(r) + "|" + route
}

// Handler enforces rate limits before delegating to the next handler. Store
// errors fail open so a counter outage never blocks quoting.
type Handler struct {
	Counter Counter
	Config  Config
	OnError func(error)
}

// Middleware implements the http.Handler middleware interface.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Counter == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := h.Config.key(r)
		decision, err := h.Counter.Allow(r.Context(), key, h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			obs.Logger(r.Context()).Warn().Err(err).Str("key", key).Msg("rate limit store unavailable")
			next.ServeHTTP(w, r)
			return
		}
		if decision.Disabled {
			next.ServeHTTP(w, r)
			return
		}
		if !decision.Tracked {
			obs.RateLimitUntrackedTotal.Inc()
			obs.Logger(r.Context()).Warn().Str("key", key).Msg("rate limit counter full, request admitted untracked")
		}

		limitValue := decision.Limit
		if limitValue < 0 {
			limitValue = 0
		}
		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(limitValue))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.Reset.Unix(), 10))

		if !decision.Allowed {
			retryAfter := int(time.Until(decision.Reset).Round(time.Second).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			headers.Set("Retry-After", strconv.Itoa(retryAfter))
			obs.RateLimitRejectedTotal.WithLabelValues(h.Config.Route).Inc()
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded, retry later", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
