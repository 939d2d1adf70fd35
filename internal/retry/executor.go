// Package retry implements the Retry Executor (C4): it wraps a
// single-shot fetch with exponential backoff, retrying only the error
// kinds the policy table marks retryable, and surfacing the last
// observed error verbatim once attempts are exhausted.
package retry

import (
	"context"
	"time"

	"github.com/weatherstack/gateway/internal/clock"
	"github.com/weatherstack/gateway/internal/errs"
)

// FetchFunc is a single-shot upstream call, e.g. (*upstream.Client).Fetch.
type FetchFunc func(ctx context.Context, city string) ([]byte, error)

// Settings configures an Executor.
type Settings struct {
	// MaxAttempts is the maximum number of attempts, including the
	// first. Default: 3.
	MaxAttempts int

	// BackoffBase is the delay before the second attempt; delay
	// doubles each subsequent attempt. Default: 1s.
	BackoffBase time.Duration

	// Clock drives the backoff sleep, so tests can run without wall
	// time elapsing. Default: clock.System{}.
	Clock clock.Clock

	// OnRetry, if set, is invoked once per retry actually issued
	// (i.e. once before attempt 2, 3, ...). Wired to
	// metrics.Registry.RecordRetry.
	OnRetry func()
}

func (s *Settings) applyDefaults() {
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 3
	}
	if s.BackoffBase <= 0 {
		s.BackoffBase = time.Second
	}
	if s.Clock == nil {
		s.Clock = clock.System{}
	}
}

// Executor retries FetchFunc according to the configured policy.
type Executor struct {
	fetch    FetchFunc
	settings Settings
}

// New constructs an Executor wrapping fetch.
func New(fetch FetchFunc, settings Settings) *Executor {
	settings.applyDefaults()
	return &Executor{fetch: fetch, settings: settings}
}

func isRetryable(err error) bool {
	kind := errs.KindOf(err)
	if kind == errs.Cancelled {
		return false
	}
	return errs.PolicyFor(kind).Retryable
}

// Result carries the outcome of Execute along with how many retries
// (attempts beyond the first) were actually issued.
type Result struct {
	Payload       []byte
	Err           error
	RetryAttempts int
}

// Execute runs fetch(ctx, city), retrying on retryable error kinds up
// to MaxAttempts total attempts with exponential backoff between them:
// base, 2*base, 4*base, ... between attempt k and k+1. Cancellation of
// ctx — before an attempt, or during a backoff sleep — abandons the
// retry loop immediately with no further attempts. On exhaustion, the
// last observed error is surfaced verbatim.
func (e *Executor) Execute(ctx context.Context, city string) Result {
	var lastErr error
	retries := 0

	for attempt := 1; attempt <= e.settings.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Err: errs.Wrap(errs.Cancelled, "cancelled before attempt", err), RetryAttempts: retries}
		}

		payload, err := e.fetch(ctx, city)
		if err == nil {
			return Result{Payload: payload, RetryAttempts: retries}
		}
		lastErr = err

		if errs.KindOf(err) == errs.Cancelled {
			return Result{Err: err, RetryAttempts: retries}
		}
		if !isRetryable(err) || attempt == e.settings.MaxAttempts {
			break
		}

		retries++
		if e.settings.OnRetry != nil {
			e.settings.OnRetry()
		}

		delay := e.settings.BackoffBase << uint(attempt-1)
		if sleepErr := e.settings.Clock.Sleep(ctx, delay); sleepErr != nil {
			return Result{Err: errs.Wrap(errs.Cancelled, "cancelled during backoff", sleepErr), RetryAttempts: retries}
		}
	}

	return Result{Err: lastErr, RetryAttempts: retries}
}
