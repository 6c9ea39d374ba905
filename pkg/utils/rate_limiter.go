package utils

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit interface defines methods for rate limiting
type RateLimit interface {
	Capacity() int
	RefillDuration() time.Duration
	Name() string
}

// BasicRateLimit provides a simple implementation of RateLimit
type BasicRateLimit struct {
	capacity       int
	refillDuration time.Duration
	name           string
}

// Capacity returns the burst size
func (r *BasicRateLimit) Capacity() int {
	return r.capacity
}

// RefillDuration returns the time to refill the whole bucket
func (r *BasicRateLimit) RefillDuration() time.Duration {
	return r.refillDuration
}

// Name returns the name used to namespace buckets
func (r *BasicRateLimit) Name() string {
	return r.name
}

// NewBasicRateLimit creates a new basic rate limit
func NewBasicRateLimit(capacity int, refillDuration time.Duration, name string) *BasicRateLimit {
	return &BasicRateLimit{
		capacity:       capacity,
		refillDuration: refillDuration,
		name:           name,
	}
}

// RateBucket pairs a token bucket with the last time it was consulted.
type RateBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per (limit, key) pair.
type RateLimiter struct {
	buckets map[string]*RateBucket
	mu      sync.Mutex
	now     func() time.Time
}

// NewRateLimiter creates a new RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*RateBucket),
		now:     time.Now,
	}
}

// Check reports whether one more request for key fits in the limit.
func (rl *RateLimiter) Check(limit RateLimit, key string) bool {
	if limit.Capacity() <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	bucketKey := getBucketKey(key, limit.Name())

	bucket, exists := rl.buckets[bucketKey]
	if !exists {
		every := limit.RefillDuration() / time.Duration(limit.Capacity())
		bucket = &RateBucket{
			limiter: rate.NewLimiter(rate.Every(every), limit.Capacity()),
		}
		rl.buckets[bucketKey] = bucket
	}
	bucket.lastSeen = now

	return bucket.limiter.AllowN(now, 1)
}

// Len returns the number of live buckets
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Prune drops buckets that have not been consulted for longer than idle.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idle)
	removed := 0
	for key, bucket := range rl.buckets {
		if bucket.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// StartPruning prunes idle buckets every interval until ctx is done.
func (rl *RateLimiter) StartPruning(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Prune(idle)
		}
	}
}

// getBucketKey creates a key for the rate limiter bucket
func getBucketKey(key string, limitName string) string {
	return limitName + ":" + key
}
