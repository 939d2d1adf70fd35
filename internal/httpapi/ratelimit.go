package httpapi

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipRateLimiter is a per-client-IP token bucket, refilled at ratePerMinute
// and bursting up to the same amount. Entries idle for longer than
// limiterIdleTTL are swept by a background goroutine so the map does
// not grow unbounded under a churning set of client IPs.
type ipRateLimiter struct {
	mu             sync.Mutex
	limiters       map[string]*limiterEntry
	ratePerMin     int
	limiterIdleTTL time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterIdleTTL = 10 * time.Minute

func newIPRateLimiter(ratePerMinute int) *ipRateLimiter {
	return &ipRateLimiter{
		limiters:       make(map[string]*limiterEntry),
		ratePerMin:     ratePerMinute,
		limiterIdleTTL: limiterIdleTTL,
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.limiters[ip]
	if !ok {
		e = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(l.ratePerMin)/60.0), l.ratePerMin),
		}
		l.limiters[ip] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

// sweep removes limiters that have not been touched within the idle
// TTL. Callers run this periodically from a background goroutine; it
// is not invoked from the request path.
func (l *ipRateLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.limiterIdleTTL {
			delete(l.limiters, ip)
		}
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// rateLimitMiddleware rejects requests beyond ratePerMinute per client
// IP with 429, mirroring the policy table's RateLimited status.
func rateLimitMiddleware(limiter *ipRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(clientIP(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limited"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
