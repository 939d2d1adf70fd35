package breaker

import (
	"sync/atomic"
	"time"
)

// CircuitBreaker guards a single upstream collaborator with the
// Closed/Open/HalfOpen state machine. State and cumulative counts are
// atomic fields; the recent-outcome ring used for rate-based tripping is
// the one piece of state that lives behind its own mutex (see ring.go),
// taken briefly for every recorded outcome and trip evaluation.
//
// Do not construct directly; use New.
type CircuitBreaker struct {
	name             string
	failureThreshold uint32
	failureRate      float64
	minSamples       int
	recoveryTimeout  time.Duration
	clk              clockLike
	onStateChange    func(name string, from, to State)

	state atomic.Int32

	requests             atomic.Uint32
	totalSuccesses       atomic.Uint32
	totalFailures        atomic.Uint32
	consecutiveFailures  atomic.Uint32
	consecutiveSuccesses atomic.Uint32

	openedAt atomic.Int64 // UnixNano of the last transition to Open; meaningful only while Open or HalfOpen

	halfOpenInFlight atomic.Bool

	ring *outcomeRing
}

// clockLike is the subset of clock.Clock the breaker needs; declared
// locally so this file doesn't need to import the clock package just
// for the interface name.
type clockLike interface {
	Now() time.Time
}

// New constructs a CircuitBreaker ready to use in the Closed state.
func New(settings Settings) *CircuitBreaker {
	settings.applyDefaults()

	cb := &CircuitBreaker{
		name:             settings.Name,
		failureThreshold: settings.FailureThreshold,
		failureRate:      settings.FailureRateThreshold,
		minSamples:       settings.MinimumSamples,
		recoveryTimeout:  settings.RecoveryTimeout,
		clk:              settings.Clock,
		onStateChange:    settings.OnStateChange,
		ring:             newOutcomeRing(settings.RecentOutcomeWindow),
	}
	cb.state.Store(int32(StateClosed))
	return cb
}

// Name returns the breaker's identifier.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current state. The result is a point-in-time
// snapshot; it may change immediately after return due to concurrent
// Call invocations.
func (cb *CircuitBreaker) State() State {
	return State(cb.state.Load())
}

// admit decides whether a call may proceed, performing the lazy
// Open->HalfOpen transition when the recovery timeout has elapsed.
// Returns the effective state the caller should execute under.
func (cb *CircuitBreaker) admit() (State, bool) {
	current := cb.State()
	if current != StateOpen {
		return current, true
	}

	openedAt := cb.openedAt.Load()
	elapsed := time.Duration(cb.clk.Now().UnixNano() - openedAt)
	if elapsed < cb.recoveryTimeout {
		return current, false
	}

	cb.transitionToHalfOpen()
	return StateHalfOpen, true
}

// Call executes fn under breaker protection. It returns fn's result
// unchanged; verdict determines whether fn's outcome counts as success
// or failure toward the state machine. VerdictNone (the caller
// cancelled before a verdict was reached) is recorded nowhere and
// never triggers a transition.
//
// If admission is denied, fn is never invoked and Call returns
// (zero, ErrOpen).
func (cb *CircuitBreaker) Call(fn func() (interface{}, Verdict, error)) (interface{}, error) {
	currentState, ok := cb.admit()
	if !ok {
		return nil, ErrOpen
	}

	if currentState == StateHalfOpen {
		if !cb.halfOpenInFlight.CompareAndSwap(false, true) {
			// Another probe is already in flight; fail fast rather
			// than stack up concurrent probes against a breaker that
			// hasn't proven it recovered yet.
			return nil, ErrOpen
		}
		defer cb.halfOpenInFlight.Store(false)
	}

	cb.requests.Add(1)

	result, verdict, err := fn()

	if verdict != VerdictNone {
		cb.recordOutcome(verdict)
		cb.handleTransition(verdict, currentState)
	}

	return result, err
}
