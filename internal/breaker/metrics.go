package breaker

// Snapshot bundles state and counts into one consistent-enough view for
// logging, health checks, and response metadata. Like CircuitBreaker.Counts,
// it is built from sequential atomic reads: each field is accurate, but
// the collection as a whole is not a single atomic transaction.
type Snapshot struct {
	State  State
	Counts Counts
}

// Metrics returns a Snapshot of the breaker's current state and counts.
func (cb *CircuitBreaker) Metrics() Snapshot {
	return Snapshot{
		State:  cb.State(),
		Counts: cb.Counts(),
	}
}
