// Package errs models upstream and gateway failures as a closed set of
// kinds, each carrying its HTTP status, retry eligibility, breaker
// verdict, and stale-cache eligibility. This replaces an exception
// hierarchy with a single policy table, so the mapping from "what went
// wrong" to "what the gateway does about it" can never drift between
// call sites.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a closed enumeration of the ways a request through the
// resilience core can fail.
type Kind int

const (
	// Unknown is the zero value; it should never be surfaced.
	Unknown Kind = iota

	// BadRequest means the caller's input was invalid (e.g. empty city).
	BadRequest

	// Auth means the upstream rejected our credentials.
	Auth

	// NotFound means the upstream has no data for the query.
	NotFound

	// RateLimited means the upstream is throttling us.
	RateLimited

	// Transport means the connection to the upstream failed.
	Transport

	// Timeout means a connect/read/total deadline was exceeded.
	Timeout

	// ServerError means the upstream returned a 5xx.
	ServerError

	// Malformed means the upstream response could not be decoded.
	Malformed

	// BreakerOpen means the circuit breaker short-circuited the call.
	BreakerOpen

	// Cancelled means the caller's context was done before a verdict
	// was reached. Never retried, never counted by the breaker.
	Cancelled
)

// String renders the kind's name, lowercased, for logging and metrics
// labels.
func (k Kind) String() string {
	switch k {
	case BadRequest:
		return "bad_request"
	case Auth:
		return "auth"
	case NotFound:
		return "not_found"
	case RateLimited:
		return "rate_limited"
	case Transport:
		return "transport"
	case Timeout:
		return "timeout"
	case ServerError:
		return "server_error"
	case Malformed:
		return "malformed"
	case BreakerOpen:
		return "breaker_open"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Verdict is the classification a kind receives for the purpose of
// driving the circuit breaker's state machine.
type Verdict int

const (
	// VerdictSuccess means the breaker should treat this as a healthy
	// response (the upstream answered, even if the answer was "no").
	VerdictSuccess Verdict = iota

	// VerdictFailure means the breaker should count this against the
	// failure thresholds.
	VerdictFailure

	// VerdictNone means the breaker records nothing: the attempt never
	// reached a verdict (client cancellation).
	VerdictNone
)

// Policy is the total, centralized mapping from a Kind to the decisions
// every layer needs to make about it.
type Policy struct {
	HTTPStatus    int
	Retryable     bool
	Verdict       Verdict
	StaleEligible bool
}

var policyTable = map[Kind]Policy{
	BadRequest:   {HTTPStatus: 400, Retryable: false, Verdict: VerdictNone, StaleEligible: false},
	Auth:         {HTTPStatus: 401, Retryable: false, Verdict: VerdictSuccess, StaleEligible: false},
	NotFound:     {HTTPStatus: 404, Retryable: false, Verdict: VerdictSuccess, StaleEligible: false},
	RateLimited:  {HTTPStatus: 429, Retryable: false, Verdict: VerdictFailure, StaleEligible: true},
	Transport:    {HTTPStatus: 502, Retryable: true, Verdict: VerdictFailure, StaleEligible: true},
	Timeout:      {HTTPStatus: 504, Retryable: true, Verdict: VerdictFailure, StaleEligible: true},
	ServerError:  {HTTPStatus: 502, Retryable: true, Verdict: VerdictFailure, StaleEligible: true},
	Malformed:    {HTTPStatus: 502, Retryable: true, Verdict: VerdictFailure, StaleEligible: true},
	BreakerOpen:  {HTTPStatus: 503, Retryable: false, Verdict: VerdictNone, StaleEligible: true},
	Cancelled:    {HTTPStatus: 499, Retryable: false, Verdict: VerdictNone, StaleEligible: false},
}

// PolicyFor returns the policy for k. It panics for Unknown or any kind
// missing from the table — both indicate a programming error, not a
// runtime condition, so failing loudly beats silently defaulting.
func PolicyFor(k Kind) Policy {
	p, ok := policyTable[k]
	if !ok {
		panic(fmt.Sprintf("errs: no policy registered for kind %q", k))
	}
	return p
}

// Error is the concrete error type carried through the retry executor
// and circuit breaker. Its Kind drives every downstream decision.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to ServerError (HTTP
// 502 in the policy table) for any error that didn't originate in this
// package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ServerError
}
