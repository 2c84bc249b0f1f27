package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterHourlyBudget(t *testing.T) {
	limiter := NewRateLimiter()

	base := time.Date(2026, 3, 10, 14, 5, 0, 0, time.UTC)
	current := base
	limiter.now = func() time.Time { return current }

	// Spread 5 deliveries across the hour so the burst window stays clear.
	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow("webhook|http://x", 5, 0), "delivery %d within budget", i+1)
		current = current.Add(6 * time.Minute)
	}

	// Sixth delivery in the same calendar hour is rejected.
	current = base.Add(50 * time.Minute)
	assert.False(t, limiter.Allow("webhook|http://x", 5, 0))

	// The budget resets at the top of the next hour, not an hour after the
	// first delivery.
	current = time.Date(2026, 3, 10, 15, 0, 1, 0, time.UTC)
	assert.True(t, limiter.Allow("webhook|http://x", 5, 0))
}

func TestRateLimiterBurstBudget(t *testing.T) {
	limiter := NewRateLimiter()

	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	current := base
	limiter.now = func() time.Time { return current }

	// 10 deliveries within 3 minutes all pass.
	for i := 0; i < 10; i++ {
		assert.True(t, limiter.Allow("chat|http://y", 100, 10), "delivery %d within burst", i+1)
		current = current.Add(18 * time.Second)
	}

	// The 11th within the burst window is rejected even though the hourly
	// budget has room.
	assert.False(t, limiter.Allow("chat|http://y", 100, 10))

	// After the burst window slides past the early deliveries, room opens up.
	current = base.Add(6 * time.Minute)
	assert.True(t, limiter.Allow("chat|http://y", 100, 10))
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewRateLimiter()

	assert.True(t, limiter.Allow("a|1", 1, 1))
	assert.False(t, limiter.Allow("a|1", 1, 1))
	assert.True(t, limiter.Allow("b|2", 1, 1))
}

func TestRateLimiterUnlimited(t *testing.T) {
	limiter := NewRateLimiter()

	for i := 0; i < 1000; i++ {
		assert.True(t, limiter.Allow("unbounded", 0, 0))
	}
}
