package breaker

import "time"

// notifyStateChange invokes the caller-supplied OnStateChange hook with
// panic recovery: a misbehaving hook must not crash the goroutine that
// just completed a state transition, and the transition itself has
// already been committed by the time this runs, so there is nothing to
// roll back.
func (cb *CircuitBreaker) notifyStateChange(from, to State) {
	if cb.onStateChange == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	cb.onStateChange(cb.name, from, to)
}

// handleTransition applies the state table of the breaker's design:
// Closed only evaluates tripping on failure; HalfOpen moves to Closed
// on success or back to Open on failure.
func (cb *CircuitBreaker) handleTransition(verdict Verdict, currentState State) {
	switch currentState {
	case StateClosed:
		if verdict == VerdictFailure {
			cb.checkAndTrip()
		}
	case StateHalfOpen:
		if verdict == VerdictSuccess {
			cb.transitionToClosed()
		} else {
			cb.transitionBackToOpen()
		}
	}
}

// checkAndTrip evaluates the dual trigger — consecutive-failure count
// OR recent-window failure rate with a minimum-sample floor — and
// transitions Closed->Open the instant either is satisfied.
func (cb *CircuitBreaker) checkAndTrip() {
	counts := cb.Counts()

	tripByCount := counts.ConsecutiveFailures >= cb.failureThreshold
	tripByRate := counts.RecentSamples >= cb.minSamples && counts.RecentFailureRate >= cb.failureRate

	if !tripByCount && !tripByRate {
		return
	}

	if !cb.state.CompareAndSwap(int32(StateClosed), int32(StateOpen)) {
		return // lost the race to another goroutine
	}

	cb.openedAt.Store(cb.clk.Now().UnixNano())
	cb.clearCounts()

	cb.notifyStateChange(StateClosed, StateOpen)
}

// transitionToHalfOpen moves Open->HalfOpen. Called lazily from admit
// once the recovery timeout has elapsed; no background timer needed.
func (cb *CircuitBreaker) transitionToHalfOpen() {
	if !cb.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
		return
	}
	cb.clearCounts()
	cb.halfOpenInFlight.Store(false)
	cb.notifyStateChange(StateOpen, StateHalfOpen)
}

// transitionToClosed moves HalfOpen->Closed on a successful probe.
func (cb *CircuitBreaker) transitionToClosed() {
	if !cb.state.CompareAndSwap(int32(StateHalfOpen), int32(StateClosed)) {
		return
	}
	cb.clearCounts()
	cb.openedAt.Store(0)
	cb.notifyStateChange(StateHalfOpen, StateClosed)
}

// transitionBackToOpen moves HalfOpen->Open on a failed probe,
// refreshing opened_at so the recovery window restarts.
func (cb *CircuitBreaker) transitionBackToOpen() {
	if !cb.state.CompareAndSwap(int32(StateHalfOpen), int32(StateOpen)) {
		return
	}
	cb.openedAt.Store(cb.clk.Now().UnixNano())
	cb.clearCounts()
	cb.notifyStateChange(StateHalfOpen, StateOpen)
}

// OpenedAt returns the time the breaker last transitioned to Open, and
// whether it is currently in Open or HalfOpen (opened_at is set iff
// state is one of those two).
func (cb *CircuitBreaker) OpenedAt() (time.Time, bool) {
	if s := cb.State(); s != StateOpen && s != StateHalfOpen {
		return time.Time{}, false
	}
	return time.Unix(0, cb.openedAt.Load()), true
}
