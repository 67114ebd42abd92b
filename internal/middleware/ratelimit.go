package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"cpmboard/internal/metrics"

	"github.com/rs/zerolog/log"
)

// visitor tracks request timestamps for one client IP.
type visitor struct {
	timestamps []time.Time
	lastSeen   time.Time
}

// RateLimiter is a per-IP sliding-window rate limiter. Stale visitors are
// dropped lazily once they have been quiet longer than the cleanup horizon.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
	cleanup  time.Duration
}

// NewRateLimiter creates a limiter allowing rate requests per window per IP.
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		cleanup:  2 * window,
	}
}

// Allow reports whether another request from ip fits in the window, and
// records it if so.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	// Drop visitors that have been idle past the cleanup horizon.
	for addr, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.cleanup {
			delete(rl.visitors, addr)
		}
	}

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{}
		rl.visitors[ip] = v
	}
	v.lastSeen = now

	// Keep only timestamps inside the window.
	cutoff := now.Add(-rl.window)
	kept := v.timestamps[:0]
	for _, ts := range v.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	v.timestamps = kept

	if len(v.timestamps) >= rl.rate {
		return false
	}

	v.timestamps = append(v.timestamps, now)
	return true
}

// RateLimitConfig groups the limiters applied to write-heavy endpoints.
// Creates are the original board's spam-guard concern; reports get their own
// budget so a reporting spree cannot starve legitimate creates.
type RateLimitConfig struct {
	CreateLimiter *RateLimiter
	ReportLimiter *RateLimiter
}

// NewDefaultRateLimitConfig returns the default limits: 5 creates and 10
// reports per IP per hour.
func NewDefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		CreateLimiter: NewRateLimiter(5, time.Hour),
		ReportLimiter: NewRateLimiter(10, time.Hour),
	}
}

// RateLimitMiddleware applies the configured limiters to listing creation
// and report submission. All other requests pass through untouched.
func RateLimitMiddleware(cfg *RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var limiter *RateLimiter
			var name string

			switch {
			case r.Method == http.MethodPost && r.URL.Path == "/api/listings":
				limiter = cfg.CreateLimiter
				name = "create"
			case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/report"):
				limiter = cfg.ReportLimiter
				name = "report"
			}

			if limiter != nil {
				ip := GetClientIP(r)
				if !limiter.Allow(ip) {
					metrics.RateLimitedTotal.WithLabelValues(name).Inc()
					log.Warn().Str("client_ip", ip).Str("limiter", name).Msg("rate limit exceeded")
					http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
