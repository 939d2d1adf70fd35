// Package httpapi implements the HTTP surface (C8/C9/C11): the
// gorilla/mux router, per-IP rate limiting, and the request-id/access-
// log/recovery middleware chain in front of the Request Orchestrator.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/weatherstack/gateway/internal/breaker"
	"github.com/weatherstack/gateway/internal/errs"
	"github.com/weatherstack/gateway/internal/gateway"
	"github.com/weatherstack/gateway/internal/metrics"
)

// Server bundles the router and its dependencies. It implements
// http.Handler directly so it can be passed straight to http.Server.
type Server struct {
	router  *mux.Router
	orch    *gateway.Orchestrator
	metrics *metrics.Registry
	breaker *breaker.CircuitBreaker
	logger  *zap.Logger
	limiter *ipRateLimiter
	started time.Time
}

// Config bundles Server's construction parameters.
type Config struct {
	Orchestrator       *gateway.Orchestrator
	Metrics            *metrics.Registry
	Breaker            *breaker.CircuitBreaker
	Logger             *zap.Logger
	RateLimitPerMinute int
}

// NewServer builds a Server with the full route table and middleware
// chain wired in. Call ServeHTTP (or hand the Server to http.Server)
// to start serving.
func NewServer(cfg Config) *Server {
	s := &Server{
		orch:    cfg.Orchestrator,
		metrics: cfg.Metrics,
		breaker: cfg.Breaker,
		logger:  cfg.Logger,
		limiter: newIPRateLimiter(cfg.RateLimitPerMinute),
		started: time.Now(),
	}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoveryMiddleware(cfg.Logger))
	r.Use(accessLogMiddleware(cfg.Logger))

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetricsJSON).Methods(http.MethodGet)
	r.Handle("/metrics/prom", promhttp.Handler()).Methods(http.MethodGet)

	r.Handle("/weather", rateLimitMiddleware(s.limiter)(http.HandlerFunc(s.handleWeather))).Methods(http.MethodGet)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler by delegating to the configured router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// StartSweeper launches a background goroutine that prunes idle rate
// limiter entries every interval, until ctx is cancelled.
func (s *Server) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				s.limiter.sweep(t)
			}
		}
	}()
}

type weatherMetadata struct {
	Cached              bool    `json:"cached"`
	Stale               bool    `json:"stale"`
	AgeSeconds          float64 `json:"age_seconds"`
	Source              string  `json:"source"`
	RetryAttempts       int     `json:"retry_attempts"`
	CircuitBreakerState string  `json:"circuit_breaker_state"`
}

type weatherResponse struct {
	Data     json.RawMessage `json:"data"`
	Metadata weatherMetadata `json:"metadata"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")

	result := s.orch.Handle(r.Context(), city)
	if result.Err != nil {
		kind := errs.KindOf(result.Err)
		writeJSON(w, errs.PolicyFor(kind).HTTPStatus, errorResponse{Error: result.Err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, weatherResponse{
		Data: json.RawMessage(result.Payload),
		Metadata: weatherMetadata{
			Cached:              result.Metadata.Cached,
			Stale:               result.Metadata.Stale,
			AgeSeconds:          result.Metadata.AgeSeconds,
			Source:              string(result.Metadata.Source),
			RetryAttempts:       result.Metadata.RetryAttempts,
			CircuitBreakerState: result.Metadata.BreakerState,
		},
	})
}

type healthResponse struct {
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	Service      string    `json:"service"`
	UptimeSecond float64   `json:"uptime_seconds"`
	BreakerState string    `json:"breaker_state"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:       "healthy",
		Timestamp:    time.Now().UTC(),
		Service:      "weatherstack-gateway",
		UptimeSecond: time.Since(s.started).Seconds(),
		BreakerState: s.breaker.State().String(),
	})
}

func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "weatherstack-gateway",
		"weather": "/weather?city=...",
		"health":  "/health",
		"metrics": "/metrics",
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
