package middleware

import (
	"errors"
	"sync"
	"time"

	"sker/internal/registry"
)

// tokenBucket is a minimal token-bucket limiter keyed per principal.
type tokenBucket struct {
	tokens   float64
	capacity float64
	refill   float64 // tokens per second
	last     time.Time
}

func (b *tokenBucket) allow(now time.Time) bool {
	elapsed := now.Sub(b.last).Seconds()
	b.tokens += elapsed * b.refill
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// ErrRateLimited is returned when a principal/token has exhausted its
// bucket (§4.9).
var ErrRateLimited = errors.New("middleware: rate limited")

// RateLimiter holds one bucket per key.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*tokenBucket
	capacity float64
	window   time.Duration
}

// NewRateLimiter creates a limiter allowing maxRequests per window,
// keyed per principal or token hash (§4.9).
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets:  map[string]*tokenBucket{},
		capacity: float64(maxRequests),
		window:   window,
	}
}

func (r *RateLimiter) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: r.capacity, capacity: r.capacity, refill: r.capacity / r.window.Seconds(), last: time.Now()}
		r.buckets[key] = b
	}
	return b.allow(time.Now())
}

// keyFor derives the rate-limit bucket key: the authenticated
// principal's subject if present, else the request's method name as a
// coarse fallback for unauthenticated stdio callers.
func keyFor(ctx *registry.RequestContext) string {
	if ctx.Metadata != nil {
		if p, ok := ctx.Metadata["user"].(*Principal); ok && p != nil {
			return "user:" + p.Subject
		}
	}
	return "anon:" + ctx.MethodName
}

// RateLimit enforces a token bucket per principal/key (§4.9).
func RateLimit(id string, priority int, limiter *RateLimiter) registry.MiddlewareEntry {
	return registry.MiddlewareEntry{
		ID:       id,
		Priority: priority,
		Fn: func(ctx *registry.RequestContext, next func() (any, error)) (any, error) {
			if !limiter.allow(keyFor(ctx)) {
				return nil, ErrRateLimited
			}
			return next()
		},
	}
}
