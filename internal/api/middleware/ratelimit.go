package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/predictgate/internal/api/response"
	"github.com/kiranshivaraju/predictgate/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	rateWindow               = time.Minute
)

// RateLimit provides fixed-window rate limiting via Redis.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
	now            func() time.Time
	onLimited      func()
}

// NewRateLimit creates a new RateLimit middleware. onLimited, if non-nil, is
// called for every rejected request.
func NewRateLimit(c cache.Cache, requestsPerMin int, onLimited func()) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, requestsPerMin: requestsPerMin, now: time.Now, onLimited: onLimited}
}

// Limit applies rate limiting keyed by the client identity set by Identify.
// A nil RateLimit passes every request through.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, ok := GetClientKey(r)
		if !ok {
			// Identify didn't run; pass through
			next.ServeHTTP(w, r)
			return
		}

		now := rl.now()
		key := cache.RateLimitKey(client, rateWindow, now)
		count, err := rl.cache.IncrWithExpiry(r.Context(), key, rateWindow)
		if err != nil {
			// On Redis error, allow the request (fail open)
			slog.Warn("rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerMin - int(count)
		if remaining < 0 {
			remaining = 0
		}
		window := int64(rateWindow.Seconds())
		reset := (now.Unix()/window + 1) * window

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))

		if count > int64(rl.requestsPerMin) {
			if rl.onLimited != nil {
				rl.onLimited()
			}
			w.Header().Set("Retry-After", strconv.FormatInt(reset-now.Unix(), 10))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
