package breaker

// recordOutcome updates the atomic counters and the recent-outcome ring
// for one verdict. Cancelled attempts (VerdictNone) never reach this
// function.
func (cb *CircuitBreaker) recordOutcome(v Verdict) {
	success := v == VerdictSuccess
	cb.ring.push(success)

	if success {
		cb.totalSuccesses.Add(1)
		cb.consecutiveSuccesses.Add(1)
		cb.consecutiveFailures.Store(0)
	} else {
		cb.totalFailures.Add(1)
		cb.consecutiveFailures.Add(1)
		cb.consecutiveSuccesses.Store(0)
	}
}

// clearCounts resets the cumulative and consecutive counters. Called on
// every state transition; the recent-outcome ring is deliberately left
// alone, since it represents a rolling window over real upstream
// behavior, not per-state bookkeeping.
func (cb *CircuitBreaker) clearCounts() {
	cb.requests.Store(0)
	cb.totalSuccesses.Store(0)
	cb.totalFailures.Store(0)
	cb.consecutiveSuccesses.Store(0)
	cb.consecutiveFailures.Store(0)
}

// Counts returns a snapshot of current counts, including the
// ring-derived recent failure rate.
func (cb *CircuitBreaker) Counts() Counts {
	rate, n := cb.ring.rate()
	return Counts{
		Requests:             cb.requests.Load(),
		TotalSuccesses:       cb.totalSuccesses.Load(),
		TotalFailures:        cb.totalFailures.Load(),
		ConsecutiveFailures:  cb.consecutiveFailures.Load(),
		ConsecutiveSuccesses: cb.consecutiveSuccesses.Load(),
		RecentFailureRate:    rate,
		RecentSamples:        n,
	}
}
