// Package gateway implements the Request Orchestrator (C7): it composes
// the cache, circuit breaker, and retry executor into the per-request
// decision tree described by the resilience core, and is the only
// component that touches all of them at once.
package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/weatherstack/gateway/internal/breaker"
	"github.com/weatherstack/gateway/internal/cache"
	"github.com/weatherstack/gateway/internal/clock"
	"github.com/weatherstack/gateway/internal/errs"
	"github.com/weatherstack/gateway/internal/metrics"
	"github.com/weatherstack/gateway/internal/retry"
)

// Source identifies where a response's data came from.
type Source string

const (
	SourceAPI           Source = "api"
	SourceCache         Source = "cache"
	SourceCacheFallback Source = "cache_fallback"
)

// ResponseMetadata is attached to every successful /weather response.
type ResponseMetadata struct {
	Cached        bool
	Stale         bool
	AgeSeconds    float64
	Source        Source
	RetryAttempts int
	BreakerState  string
}

// Result is the outcome of Orchestrator.Handle: either Payload and
// Metadata are populated (success), or Err is (failure).
type Result struct {
	Payload  []byte
	Metadata ResponseMetadata
	Err      error
}

// Orchestrator composes the cache, breaker, retry executor, and
// metrics registry into the per-request control flow of §4.7.
type Orchestrator struct {
	cache   *cache.Cache
	breaker *breaker.CircuitBreaker
	retrier *retry.Executor
	metrics *metrics.Registry
	clk     clock.Clock
}

// New constructs an Orchestrator from its already-constructed
// collaborators. Nothing here constructs a collaborator itself — that
// happens once, at startup, in cmd/weatherstack-gatewayd.
func New(c *cache.Cache, b *breaker.CircuitBreaker, r *retry.Executor, m *metrics.Registry, clk clock.Clock) *Orchestrator {
	return &Orchestrator{cache: c, breaker: b, retrier: r, metrics: m, clk: clk}
}

// Handle runs one request for rawCity through the decision tree:
// fresh cache -> breaker-guarded retrying fetch -> stale cache fallback
// -> surfaced error. Every exit path past input validation records
// exactly one response-time sample; an empty city records only the
// request counter.
func (o *Orchestrator) Handle(ctx context.Context, rawCity string) Result {
	start := o.clk.Now()
	city := strings.TrimSpace(rawCity)

	if city == "" {
		// No metrics interaction beyond the request counter, per the
		// contract: validation failures aren't upstream or cache
		// events.
		o.metrics.RecordRequest()
		return Result{Err: errs.New(errs.BadRequest, "city is required")}
	}

	o.metrics.RecordRequest()
	key := cache.Key(city)

	if payload, ok := o.cache.GetFresh(key); ok {
		o.metrics.RecordCacheHit()
		elapsed := o.clk.Now().Sub(start)
		o.metrics.RecordResponseTime(elapsed.Seconds())
		return Result{
			Payload: payload,
			Metadata: ResponseMetadata{
				Cached: true, Stale: false, AgeSeconds: 0,
				Source: SourceCache, RetryAttempts: 0,
				BreakerState: o.breaker.State().String(),
			},
		}
	}
	o.metrics.RecordCacheMiss()

	outcome, err := o.breaker.Call(func() (interface{}, breaker.Verdict, error) {
		res := o.retrier.Execute(ctx, city)
		if res.Err != nil {
			return res, verdictFor(res.Err), res.Err
		}
		return res, breaker.VerdictSuccess, nil
	})

	if err == breaker.ErrOpen {
		o.metrics.RecordError(errs.BreakerOpen.String())
		elapsed := o.clk.Now().Sub(start)
		o.metrics.RecordResponseTime(elapsed.Seconds())
		return o.fallbackOrFail(key, errs.BreakerOpen, elapsed)
	}

	res, _ := outcome.(retry.Result)

	if err == nil {
		o.cache.Put(key, res.Payload)
		elapsed := o.clk.Now().Sub(start)
		o.metrics.RecordResponseTime(elapsed.Seconds())
		return Result{
			Payload: res.Payload,
			Metadata: ResponseMetadata{
				Cached: false, Stale: false, AgeSeconds: 0,
				Source: SourceAPI, RetryAttempts: res.RetryAttempts,
				BreakerState: o.breaker.State().String(),
			},
		}
	}

	kind := errs.KindOf(err)
	elapsed := o.clk.Now().Sub(start)

	if kind == errs.Cancelled {
		o.metrics.RecordResponseTime(elapsed.Seconds())
		return Result{Err: err}
	}

	o.metrics.RecordError(kind.String())
	if kind == errs.Timeout {
		o.metrics.RecordTimeout()
	}
	o.metrics.RecordResponseTime(elapsed.Seconds())

	policy := errs.PolicyFor(kind)
	if !policy.StaleEligible {
		// NotFound/Auth indicate the answer, not an outage: surface
		// immediately, never consult stale cache.
		return Result{Err: err}
	}

	return o.fallbackOrFail(key, kind, elapsed)
}

// fallbackOrFail attempts a stale-cache read for key; on a hit it
// returns degraded metadata, on a miss it surfaces failingKind's
// canonical status via a policy-table error.
func (o *Orchestrator) fallbackOrFail(key string, failingKind errs.Kind, _ time.Duration) Result {
	payload, meta, ok := o.cache.GetAny(key)
	if !ok {
		return Result{Err: errs.New(failingKind, "no fallback available")}
	}

	o.metrics.RecordStaleFallback()
	source := SourceCache
	if meta.Source == "cache_fallback" {
		source = SourceCacheFallback
	}
	return Result{
		Payload: payload,
		Metadata: ResponseMetadata{
			Cached: meta.Cached, Stale: meta.Stale, AgeSeconds: meta.AgeSeconds,
			Source: source, RetryAttempts: 0,
			BreakerState: o.breaker.State().String(),
		},
	}
}

// verdictFor maps a fetch error to the breaker verdict it should
// record. NotFound/Auth are healthy-upstream signals; RateLimited and
// the retryable transport kinds are failures; cancellation records
// nothing.
func verdictFor(err error) breaker.Verdict {
	kind := errs.KindOf(err)
	if kind == errs.Cancelled {
		return breaker.VerdictNone
	}
	switch errs.PolicyFor(kind).Verdict {
	case errs.VerdictSuccess:
		return breaker.VerdictSuccess
	case errs.VerdictFailure:
		return breaker.VerdictFailure
	default:
		return breaker.VerdictNone
	}
}
