package interceptors

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a key has no tokens left
var ErrRateLimited = errors.New("rate limit: no tokens available")

// TokenBucketLimiter keeps one token bucket per key
type TokenBucketLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewTokenBucketLimiter allows perSecond events per key with the given burst
func NewTokenBucketLimiter(perSecond float64, burst int) *TokenBucketLimiter {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucketLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *TokenBucketLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	return limiter
}

// Allow implements RateLimiter
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) error {
	if !l.limiter(key).Allow() {
		return ErrRateLimited
	}
	return nil
}

// Wait blocks until a token is available or ctx is done
func (l *TokenBucketLimiter) Wait(ctx context.Context, key string) error {
	return l.limiter(key).Wait(ctx)
}
