package ratelimit

import (
	"sync"
	"time"

	"github.com/juju/ratelimit"
)

// Limiter keeps one token bucket per identifier (user ID or remote IP). It
// guards pending-publisher registration against bulk name-squatting.
type Limiter struct {
	fillInterval time.Duration
	capacity     int64

	mu      sync.Mutex
	buckets map[string]*ratelimit.Bucket
}

func NewLimiter(fillInterval time.Duration, capacity int64) *Limiter {
	return &Limiter{
		fillInterval: fillInterval,
		capacity:     capacity,
		buckets:      make(map[string]*ratelimit.Bucket),
	}
}

func (l *Limiter) bucket(identifier string) *ratelimit.Bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[identifier]
	if !ok {
		b = ratelimit.NewBucket(l.fillInterval, l.capacity)
		l.buckets[identifier] = b
	}
	return b
}

// Test reports whether a hit would currently be allowed, without consuming.
func (l *Limiter) Test(identifier string) bool {
	return l.bucket(identifier).Available() > 0
}

// Hit consumes one unit and reports whether it was allowed.
func (l *Limiter) Hit(identifier string) bool {
	return l.bucket(identifier).TakeAvailable(1) > 0
}

// Clear resets the identifier's budget by handing it a fresh bucket.
func (l *Limiter) Clear(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, identifier)
}
