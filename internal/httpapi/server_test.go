package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/weatherstack/gateway/internal/breaker"
	"github.com/weatherstack/gateway/internal/cache"
	"github.com/weatherstack/gateway/internal/clock"
	"github.com/weatherstack/gateway/internal/errs"
	"github.com/weatherstack/gateway/internal/gateway"
	"github.com/weatherstack/gateway/internal/metrics"
	"github.com/weatherstack/gateway/internal/retry"
)

func newTestServer(t *testing.T, fetch retry.FetchFunc, rateLimitPerMinute int) *Server {
	t.Helper()
	fake := clock.NewFake(time.Unix(0, 0))
	c := cache.New(5*time.Minute, time.Hour, 100, fake)
	cb := breaker.New(breaker.Settings{Name: "test", Clock: fake})
	retrier := retry.New(fetch, retry.Settings{MaxAttempts: 1, Clock: fake})
	m := metrics.New(nil)
	orch := gateway.New(c, cb, retrier, m, fake)

	if rateLimitPerMinute == 0 {
		rateLimitPerMinute = 600
	}
	return NewServer(Config{
		Orchestrator:       orch,
		Metrics:            m,
		Breaker:            cb,
		Logger:             zap.NewNop(),
		RateLimitPerMinute: rateLimitPerMinute,
	})
}

func TestHandleWeatherSuccess(t *testing.T) {
	s := newTestServer(t, func(ctx context.Context, city string) ([]byte, error) {
		return []byte(`{"temp":20}`), nil
	}, 0)

	req := httptest.NewRequest(http.MethodGet, "/weather?city=Paris", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body struct {
		Data     json.RawMessage `json:"data"`
		Metadata struct {
			Cached              bool    `json:"cached"`
			Stale               bool    `json:"stale"`
			AgeSeconds          float64 `json:"age_seconds"`
			Source              string  `json:"source"`
			RetryAttempts       int     `json:"retry_attempts"`
			CircuitBreakerState string  `json:"circuit_breaker_state"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.JSONEq(t, `{"temp":20}`, string(body.Data))
	require.Equal(t, "api", body.Metadata.Source)
	require.Equal(t, "closed", body.Metadata.CircuitBreakerState)
}

func TestHandleWeatherMissingCityIsBadRequest(t *testing.T) {
	s := newTestServer(t, func(ctx context.Context, city string) ([]byte, error) {
		return []byte(`{}`), nil
	}, 0)

	req := httptest.NewRequest(http.MethodGet, "/weather", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleWeatherNotFoundMapsTo404(t *testing.T) {
	s := newTestServer(t, func(ctx context.Context, city string) ([]byte, error) {
		return nil, errs.New(errs.NotFound, "no such city")
	}, 0)

	req := httptest.NewRequest(http.MethodGet, "/weather?city=Atlantis", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, func(ctx context.Context, city string) ([]byte, error) {
		return []byte(`{}`), nil
	}, 0)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
		Service   string    `json:"service"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "healthy", body.Status)
	require.Equal(t, "weatherstack-gateway", body.Service)
	require.False(t, body.Timestamp.IsZero())
}

func TestHandleMetricsJSON(t *testing.T) {
	s := newTestServer(t, func(ctx context.Context, city string) ([]byte, error) {
		return []byte(`{}`), nil
	}, 0)

	req := httptest.NewRequest(http.MethodGet, "/weather?city=Paris", nil)
	s.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"Requests":1`)
}

func TestRateLimitExceededReturns429(t *testing.T) {
	s := newTestServer(t, func(ctx context.Context, city string) ([]byte, error) {
		return []byte(`{}`), nil
	}, 1)

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/weather?city=Paris", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		return r
	}

	rec1 := httptest.NewRecorder()
	s.ServeHTTP(rec1, req())
	require.Equal(t, http.StatusOK, rec1.Code)

	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req())
	require.Equal(t, http.StatusTooManyRequests, rec2.Code)
}

func TestPanicRecoveryReturns500(t *testing.T) {
	s := newTestServer(t, func(ctx context.Context, city string) ([]byte, error) {
		panic("boom")
	}, 0)

	req := httptest.NewRequest(http.MethodGet, "/weather?city=Paris", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()

	require.NotPanics(t, func() { s.ServeHTTP(rec, req) })
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
