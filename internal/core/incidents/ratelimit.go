package incidents

import (
	"fmt"
	"sync"
	"time"
)

// ActionLimiter enforces per-action execution budgets: no more than
// maxExecutionsPerHour in any trailing 60-minute window, and never again
// within cooldownMinutes of the last run. The check-and-record step is
// atomic per action id, so concurrent playbooks cannot both take the
// last slot.
type ActionLimiter struct {
	mu      sync.Mutex
	history map[string][]time.Time
	lastRun map[string]time.Time
	now     func() time.Time
}

// NewActionLimiter creates an action limiter.
func NewActionLimiter() *ActionLimiter {
	return &ActionLimiter{
		history: make(map[string][]time.Time),
		lastRun: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Allow consumes one execution slot for the action if both budgets have
// room, returning a reason when rejected. Zero limits disable the
// corresponding dimension.
func (l *ActionLimiter) Allow(actionID string, limit RateLimit) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if limit.CooldownMinutes > 0 {
		if last, ok := l.lastRun[actionID]; ok {
			cooldown := time.Duration(limit.CooldownMinutes) * time.Minute
			if now.Sub(last) < cooldown {
				return false, fmt.Sprintf("cooldown active, last run %s ago", now.Sub(last).Round(time.Second))
			}
		}
	}

	cutoff := now.Add(-time.Hour)
	kept := l.history[actionID][:0]
	for _, t := range l.history[actionID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.history[actionID] = kept

	if limit.MaxExecutionsPerHour > 0 && len(kept) >= limit.MaxExecutionsPerHour {
		return false, fmt.Sprintf("executed %d times in the last hour (limit %d)", len(kept), limit.MaxExecutionsPerHour)
	}

	l.history[actionID] = append(l.history[actionID], now)
	l.lastRun[actionID] = now
	return true, ""
}
