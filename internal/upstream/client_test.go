package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weatherstack/gateway/internal/errs"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := New(Config{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		ConnectTimeout: time.Second,
		ReadTimeout:    time.Second,
		TotalTimeout:   2 * time.Second,
	})
	return c, srv.Close
}

func TestFetchSuccessReturnsBody(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.URL.Query().Get("access_key"))
		require.Equal(t, "Paris", r.URL.Query().Get("query"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"current":{"temperature":20}}`))
	})
	defer closeFn()

	body, err := c.Fetch(context.Background(), "Paris")
	require.NoError(t, err)
	require.Contains(t, string(body), "temperature")
}

func TestFetchMapsHTTPStatusToKind(t *testing.T) {
	cases := []struct {
		status int
		kind   errs.Kind
	}{
		{http.StatusUnauthorized, errs.Auth},
		{http.StatusNotFound, errs.NotFound},
		{http.StatusTooManyRequests, errs.RateLimited},
		{http.StatusInternalServerError, errs.ServerError},
		{http.StatusBadGateway, errs.ServerError},
	}

	for _, tc := range cases {
		c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})

		_, err := c.Fetch(context.Background(), "Paris")
		require.Error(t, err)
		require.Equal(t, tc.kind, errs.KindOf(err), "status %d", tc.status)
		closeFn()
	}
}

func TestFetchMapsInBodyErrorEnvelope(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"error":{"code":404,"info":"city not found"}}`))
	})
	defer closeFn()

	_, err := c.Fetch(context.Background(), "Nowhereville")
	require.Error(t, err)
	require.Equal(t, errs.NotFound, errs.KindOf(err))
	require.Contains(t, err.Error(), "city not found")
}

func TestFetchMapsMalformedBody(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`not json`))
	})
	defer closeFn()

	_, err := c.Fetch(context.Background(), "Paris")
	require.Error(t, err)
	require.Equal(t, errs.Malformed, errs.KindOf(err))
}

func TestFetchMapsSlowUpstreamToTimeout(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	})
	defer closeFn()

	fast := New(Config{BaseURL: c.baseURL, APIKey: "k", ConnectTimeout: time.Second, ReadTimeout: time.Second, TotalTimeout: 10 * time.Millisecond})
	_, err := fast.Fetch(context.Background(), "Paris")
	require.Error(t, err)
	require.Equal(t, errs.Timeout, errs.KindOf(err))
}

func TestFetchRespectsCallerCancellation(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	defer closeFn()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := c.Fetch(ctx, "Paris")
	require.Error(t, err)
	require.Equal(t, errs.Cancelled, errs.KindOf(err))
}
