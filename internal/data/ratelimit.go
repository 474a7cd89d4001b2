package data

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// proactiveRate throttles REST calls per provider (requests/second)
	proactiveRate  = 5
	proactiveBurst = 5

	// minRemaining is the reserve kept before waiting for the provider's reset
	minRemaining = 10
)

// RateLimiter throttles calls to one provider API. It combines a token bucket
// with the remaining/reset headers the provider reports.
type RateLimiter struct {
	bucket *rate.Limiter

	mu        sync.Mutex
	remaining int
	resetTime time.Time
}

// NewRateLimiter creates a limiter with proactive throttling.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		bucket:    rate.NewLimiter(rate.Limit(proactiveRate), proactiveBurst),
		remaining: -1,
	}
}

// Wait blocks until it's safe to make a request.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.bucket.Wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	remaining, resetTime := r.remaining, r.resetTime
	r.mu.Unlock()

	if remaining >= 0 && remaining < minRemaining && time.Now().Before(resetTime) {
		timer := time.NewTimer(time.Until(resetTime))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// UpdateFromResponse records the provider's rate limit headers. GitHub and
// Bitbucket use the X- prefix, GitLab does not.
func (r *RateLimiter) UpdateFromResponse(resp *http.Response) {
	if resp == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if v := firstHeader(resp.Header, "X-RateLimit-Remaining", "RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			r.remaining = n
		}
	}
	if v := firstHeader(resp.Header, "X-RateLimit-Reset", "RateLimit-Reset"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			r.resetTime = time.Unix(n, 0)
		}
	}
}

func firstHeader(h http.Header, names ...string) string {
	for _, name := range names {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	return ""
}
