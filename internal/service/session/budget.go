package session

import "time"

// retryBudget allows at most max failures within any sliding window.
type retryBudget struct {
	max      int
	window   time.Duration
	failures []time.Time
}

func newRetryBudget(max int, window time.Duration) *retryBudget {
	return &retryBudget{max: max, window: window}
}

// Allow records a failure at now and reports whether it is within budget.
func (b *retryBudget) Allow(now time.Time) bool {
	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept

	if len(b.failures) >= b.max {
		return false
	}
	b.failures = append(b.failures, now)
	return true
}
