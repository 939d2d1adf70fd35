// Package breaker implements the three-state (Closed/Open/HalfOpen)
// circuit breaker guarding the upstream client. It is adapted from an
// atomics-first circuit breaker design: state and counts live in
// lock-free fields, and the one piece of state that genuinely needs a
// window — the last N outcomes used for rate-based tripping — lives
// behind its own small mutex, on the theory that a tiny ring buffer is
// the pragmatic place to pay for a lock.
package breaker

import (
	"errors"
	"time"

	"github.com/weatherstack/gateway/internal/clock"
)

// State is one of Closed, Open, or HalfOpen.
type State int32

const (
	// StateClosed allows all requests through and tracks outcomes.
	StateClosed State = iota

	// StateOpen rejects all requests immediately with ErrOpen.
	StateOpen

	// StateHalfOpen allows a single probe request to test recovery.
	StateHalfOpen
)

// String renders the state the way it is reported in response metadata
// ("closed" | "open" | "half_open").
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Counts is a point-in-time snapshot of request outcomes.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveFailures  uint32
	ConsecutiveSuccesses uint32

	// RecentFailureRate is the failure fraction among the last
	// min(RecentSamples, window) outcomes.
	RecentFailureRate float64
	RecentSamples     int
}

// Verdict is the classification one call receives for the purpose of
// driving the breaker's state machine.
type Verdict int

const (
	// VerdictSuccess counts toward ConsecutiveSuccesses/TotalSuccesses.
	VerdictSuccess Verdict = iota
	// VerdictFailure counts toward ConsecutiveFailures/TotalFailures.
	VerdictFailure
	// VerdictNone is recorded nowhere: the attempt never reached a
	// verdict (the caller cancelled before the upstream answered).
	VerdictNone
)

// Settings configures a CircuitBreaker.
type Settings struct {
	// Name identifies the breaker in logs and metrics.
	Name string

	// FailureThreshold is the consecutive-failure count that alone
	// trips the breaker. Default: 5.
	FailureThreshold uint32

	// FailureRateThreshold is the fraction (0,1) of failures among the
	// recent-outcomes window that trips the breaker, once the window
	// holds at least MinimumSamples outcomes. Default: 0.5.
	FailureRateThreshold float64

	// RecentOutcomeWindow is the capacity of the ring buffer used for
	// rate-based tripping. Default: 20.
	RecentOutcomeWindow int

	// MinimumSamples is the smallest ring-buffer population at which
	// rate-based tripping is evaluated at all. Default: 5.
	MinimumSamples int

	// RecoveryTimeout is how long the breaker stays Open before
	// admitting a single HalfOpen probe. Default: 60s.
	RecoveryTimeout time.Duration

	// Clock is the time source driving opened-at bookkeeping. Default:
	// clock.System{}.
	Clock clock.Clock

	// OnStateChange, if set, is invoked after every transition.
	OnStateChange func(name string, from, to State)
}

func (s *Settings) applyDefaults() {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.FailureRateThreshold == 0 {
		s.FailureRateThreshold = 0.5
	}
	if s.RecentOutcomeWindow == 0 {
		s.RecentOutcomeWindow = 20
	}
	if s.MinimumSamples == 0 {
		s.MinimumSamples = 5
	}
	if s.RecoveryTimeout == 0 {
		s.RecoveryTimeout = 60 * time.Second
	}
	if s.Clock == nil {
		s.Clock = clock.System{}
	}
}

// ErrOpen is returned when Call is invoked while the breaker is Open
// and the recovery timeout has not yet elapsed.
var ErrOpen = errors.New("breaker: circuit open")
