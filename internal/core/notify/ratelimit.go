package notify

import (
	"sync"
	"time"
)

// burstWindow bounds short spikes regardless of the hourly budget.
const burstWindow = 5 * time.Minute

// RateLimiter enforces per-bucket delivery budgets: a calendar-hour
// counter that resets at the top of each hour, and a trailing burst
// counter over the last five minutes. Checks are atomic per key, so two
// concurrent deliveries never both consume the last slot.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket
	now     func() time.Time
}

type rateBucket struct {
	hourStart time.Time
	hourCount int
	recent    []time.Time
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*rateBucket),
		now:     time.Now,
	}
}

// Allow consumes one delivery slot for the key if both the hourly and
// burst budgets have room. Zero or negative limits mean unlimited for
// that dimension.
func (r *RateLimiter) Allow(key string, maxPerHour, burstLimit int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	b, ok := r.buckets[key]
	if !ok {
		b = &rateBucket{hourStart: now.Truncate(time.Hour)}
		r.buckets[key] = b
	}

	hour := now.Truncate(time.Hour)
	if !b.hourStart.Equal(hour) {
		b.hourStart = hour
		b.hourCount = 0
	}

	cutoff := now.Add(-burstWindow)
	kept := b.recent[:0]
	for _, t := range b.recent {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.recent = kept

	if maxPerHour > 0 && b.hourCount >= maxPerHour {
		return false
	}
	if burstLimit > 0 && len(b.recent) >= burstLimit {
		return false
	}

	b.hourCount++
	b.recent = append(b.recent, now)
	return true
}
