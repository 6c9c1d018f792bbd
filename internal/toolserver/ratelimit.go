package toolserver

import (
	"sync"
	"time"
)

// HourlyLimiter enforces an N-calls-per-rolling-hour quota. The pack
// carries no narrower-grained quota library than golang.org/x/time/rate's
// token bucket, which models a refill rate rather than a rolling window
// count; since spec §6.2's limits are phrased as flat hourly budgets
// ("20/hour", "50/hour") a small timestamp-window counter expresses that
// directly without pulling in a dependency nothing else in this module
// needs.
type HourlyLimiter struct {
	mu    sync.Mutex
	limit int
	calls []time.Time
}

// NewHourlyLimiter constructs a limiter allowing up to limit calls in any
// trailing 60-minute window.
func NewHourlyLimiter(limit int) *HourlyLimiter {
	return &HourlyLimiter{limit: limit}
}

// Allow reports whether a call may proceed now, recording it if so.
func (l *HourlyLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-time.Hour)
	kept := l.calls[:0]
	for _, t := range l.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.calls = kept

	if len(l.calls) >= l.limit {
		return false
	}
	l.calls = append(l.calls, time.Now())
	return true
}
