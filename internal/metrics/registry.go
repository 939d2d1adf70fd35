// Package metrics implements the process-scoped Metrics Registry (C2):
// atomic counters, an error-by-kind histogram, and a bounded FIFO of
// response-time samples, mirrored into a Prometheus registry so the
// same call site feeds both the gateway's own /metrics JSON surface and
// /metrics/prom.
package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is a point-in-time view of the registry, returned by
// Registry.Snapshot. It is assembled from independent atomic/mutex
// reads: consistent per field, not across fields, per the ordering
// guarantees of the concurrency model.
type Snapshot struct {
	Requests       uint64
	Errors         uint64
	Timeouts       uint64
	CacheHits      uint64
	CacheMisses    uint64
	StaleFallbacks uint64
	BreakerOpens   uint64
	RetryAttempts  uint64

	ErrorsByKind map[string]uint64

	CacheHitRate float64
	ErrorRate    float64

	ResponseTimeP50 float64
	ResponseTimeP95 float64
	ResponseTimeP99 float64
}

const responseTimeBufferCap = 1000

// Registry is the concurrency-safe, process-scoped collector every
// request handler and resilience-core component writes into.
type Registry struct {
	requests       prometheus.Counter
	errors         prometheus.Counter
	timeouts       prometheus.Counter
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	staleFallbacks prometheus.Counter
	breakerOpens   prometheus.Counter
	retryAttempts  prometheus.Counter
	errorsByKind   *prometheus.CounterVec
	responseTime   prometheus.Histogram

	mu            sync.Mutex
	requestsN     uint64
	errorsN       uint64
	timeoutsN     uint64
	cacheHitsN    uint64
	cacheMissesN  uint64
	staleN        uint64
	breakerOpensN uint64
	retryN        uint64
	errorsByKindN map[string]uint64

	rtMu  sync.Mutex
	rtBuf []float64
	rtPos int
	rtLen int
}

// New constructs a Registry and registers its collectors with reg (the
// entrypoint passes prometheus.DefaultRegisterer, the registry that
// /metrics/prom exposes; nil is accepted in tests and falls back to a
// private registry that nothing serves).
func New(reg prometheus.Registerer) *Registry {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	r := &Registry{
		requests:       prometheus.NewCounter(prometheus.CounterOpts{Name: "gateway_requests_total", Help: "Total inbound weather requests."}),
		errors:         prometheus.NewCounter(prometheus.CounterOpts{Name: "gateway_errors_total", Help: "Total requests that ended in an error."}),
		timeouts:       prometheus.NewCounter(prometheus.CounterOpts{Name: "gateway_timeouts_total", Help: "Total upstream timeout errors."}),
		cacheHits:      prometheus.NewCounter(prometheus.CounterOpts{Name: "gateway_cache_hits_total", Help: "Total fresh cache hits."}),
		cacheMisses:    prometheus.NewCounter(prometheus.CounterOpts{Name: "gateway_cache_misses_total", Help: "Total fresh cache misses."}),
		staleFallbacks: prometheus.NewCounter(prometheus.CounterOpts{Name: "gateway_stale_fallbacks_total", Help: "Total responses served from stale cache."}),
		breakerOpens:   prometheus.NewCounter(prometheus.CounterOpts{Name: "gateway_breaker_opens_total", Help: "Total circuit breaker Closed->Open transitions."}),
		retryAttempts:  prometheus.NewCounter(prometheus.CounterOpts{Name: "gateway_retry_attempts_total", Help: "Total retry attempts issued by the retry executor."}),
		errorsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_errors_by_kind_total", Help: "Total errors, labeled by internal error kind.",
		}, []string{"kind"}),
		responseTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_response_time_seconds",
			Help:    "Request latency as observed by the orchestrator.",
			Buckets: prometheus.DefBuckets,
		}),
		errorsByKindN: make(map[string]uint64),
	}

	reg.MustRegister(r.requests, r.errors, r.timeouts, r.cacheHits, r.cacheMisses,
		r.staleFallbacks, r.breakerOpens, r.retryAttempts, r.errorsByKind, r.responseTime)

	return r
}

// RecordRequest increments the total-requests counter.
func (r *Registry) RecordRequest() {
	r.requests.Inc()
	r.mu.Lock()
	r.requestsN++
	r.mu.Unlock()
}

// RecordError increments the error counter and the per-kind histogram.
func (r *Registry) RecordError(kind string) {
	r.errors.Inc()
	r.errorsByKind.WithLabelValues(kind).Inc()
	r.mu.Lock()
	r.errorsN++
	r.errorsByKindN[kind]++
	r.mu.Unlock()
}

// RecordTimeout increments the timeout counter.
func (r *Registry) RecordTimeout() {
	r.timeouts.Inc()
	r.mu.Lock()
	r.timeoutsN++
	r.mu.Unlock()
}

// RecordCacheHit increments the fresh-cache-hit counter.
func (r *Registry) RecordCacheHit() {
	r.cacheHits.Inc()
	r.mu.Lock()
	r.cacheHitsN++
	r.mu.Unlock()
}

// RecordCacheMiss increments the fresh-cache-miss counter.
func (r *Registry) RecordCacheMiss() {
	r.cacheMisses.Inc()
	r.mu.Lock()
	r.cacheMissesN++
	r.mu.Unlock()
}

// RecordStaleFallback increments the stale-fallback counter.
func (r *Registry) RecordStaleFallback() {
	r.staleFallbacks.Inc()
	r.mu.Lock()
	r.staleN++
	r.mu.Unlock()
}

// RecordBreakerOpen increments the breaker-opens counter.
func (r *Registry) RecordBreakerOpen() {
	r.breakerOpens.Inc()
	r.mu.Lock()
	r.breakerOpensN++
	r.mu.Unlock()
}

// RecordRetry increments the retry-attempts counter.
func (r *Registry) RecordRetry() {
	r.retryAttempts.Inc()
	r.mu.Lock()
	r.retryN++
	r.mu.Unlock()
}

// RecordResponseTime appends seconds to the bounded FIFO sample buffer
// and observes it in the Prometheus histogram.
func (r *Registry) RecordResponseTime(seconds float64) {
	r.responseTime.Observe(seconds)

	r.rtMu.Lock()
	defer r.rtMu.Unlock()
	if r.rtBuf == nil {
		r.rtBuf = make([]float64, responseTimeBufferCap)
	}
	r.rtBuf[r.rtPos] = seconds
	r.rtPos = (r.rtPos + 1) % responseTimeBufferCap
	if r.rtLen < responseTimeBufferCap {
		r.rtLen++
	}
}

// percentile returns the value at floor(p*n), clamped to [0, n-1], from
// a sorted copy of the current sample buffer. Returns 0 on an empty
// buffer.
func (r *Registry) percentile(p float64) float64 {
	r.rtMu.Lock()
	defer r.rtMu.Unlock()

	n := r.rtLen
	if n == 0 {
		return 0
	}
	samples := make([]float64, n)
	copy(samples, r.rtBuf[:n])
	sort.Float64s(samples)

	idx := int(p * float64(n))
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return samples[idx]
}

// Snapshot returns a point-in-time view of every counter and derived
// statistic.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	hits, misses := r.cacheHitsN, r.cacheMissesN
	reqs, errs := r.requestsN, r.errorsN
	byKind := make(map[string]uint64, len(r.errorsByKindN))
	for k, v := range r.errorsByKindN {
		byKind[k] = v
	}
	snap := Snapshot{
		Requests:       r.requestsN,
		Errors:         r.errorsN,
		Timeouts:       r.timeoutsN,
		CacheHits:      hits,
		CacheMisses:    misses,
		StaleFallbacks: r.staleN,
		BreakerOpens:   r.breakerOpensN,
		RetryAttempts:  r.retryN,
		ErrorsByKind:   byKind,
	}
	r.mu.Unlock()

	if hits+misses > 0 {
		snap.CacheHitRate = float64(hits) / float64(hits+misses)
	}
	if reqs > 0 {
		snap.ErrorRate = float64(errs) / float64(reqs)
	}

	snap.ResponseTimeP50 = r.percentile(0.50)
	snap.ResponseTimeP95 = r.percentile(0.95)
	snap.ResponseTimeP99 = r.percentile(0.99)

	return snap
}
