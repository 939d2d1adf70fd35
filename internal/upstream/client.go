// Package upstream implements the single-shot Weatherstack client
// (C3): one HTTP GET per call, mapping transport and payload errors
// into the gateway's closed Kind enumeration. It never retries — that
// is the Retry Executor's job (internal/retry).
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/weatherstack/gateway/internal/errs"
)

// Client fetches current weather for a city from the Weatherstack API.
type Client struct {
	baseURL   string
	apiKey    string
	http      *http.Client
	connectTO time.Duration
	readTO    time.Duration
	totalTO   time.Duration
}

// Config bundles the client's construction parameters.
type Config struct {
	BaseURL        string
	APIKey         string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	TotalTimeout   time.Duration
}

// New constructs a Client. The underlying http.Client uses a Dialer
// with Config.ConnectTimeout for the connect phase and a Transport
// with Config.ReadTimeout as ResponseHeaderTimeout for the read phase;
// TotalTimeout is enforced per-call via context.
func New(cfg Config) *Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: cfg.ReadTimeout,
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		http:      &http.Client{Transport: transport},
		connectTO: cfg.ConnectTimeout,
		readTO:    cfg.ReadTimeout,
		totalTO:   cfg.TotalTimeout,
	}
}

// weatherstackError mirrors the upstream's in-body error envelope:
// {"error": {"code": 404, "info": "..."}}
type weatherstackError struct {
	Code int    `json:"code"`
	Info string `json:"info"`
}

type weatherstackResponse struct {
	Error *weatherstackError `json:"error,omitempty"`
}

// Fetch issues a single GET {base}/current?access_key=...&query=city
// request and returns the raw response body on success, or an *errs.Error
// classifying the failure otherwise.
func (c *Client) Fetch(ctx context.Context, city string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.totalTO)
	defer cancel()

	u, err := url.Parse(c.baseURL + "/current")
	if err != nil {
		return nil, errs.Wrap(errs.ServerError, "invalid upstream base url", err)
	}
	q := u.Query()
	q.Set("access_key", c.apiKey)
	q.Set("query", city)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errs.Wrap(errs.ServerError, "failed to build upstream request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if kind, ok := kindForHTTPStatus(resp.StatusCode); ok {
		return nil, errs.New(kind, fmt.Sprintf("upstream returned HTTP %d", resp.StatusCode))
	}

	var parsed weatherstackResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errs.Wrap(errs.Malformed, "could not decode upstream response", err)
	}
	if parsed.Error != nil {
		if kind, ok := kindForBodyErrorCode(parsed.Error.Code); ok {
			return nil, errs.New(kind, parsed.Error.Info)
		}
		return nil, errs.New(errs.ServerError, parsed.Error.Info)
	}

	return body, nil
}

func kindForHTTPStatus(status int) (errs.Kind, bool) {
	switch status {
	case http.StatusUnauthorized:
		return errs.Auth, true
	case http.StatusNotFound:
		return errs.NotFound, true
	case http.StatusTooManyRequests:
		return errs.RateLimited, true
	}
	if status >= 500 {
		return errs.ServerError, true
	}
	return errs.Unknown, false
}

func kindForBodyErrorCode(code int) (errs.Kind, bool) {
	switch code {
	case 401:
		return errs.Auth, true
	case 404:
		return errs.NotFound, true
	case 429:
		return errs.RateLimited, true
	}
	return errs.Unknown, false
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.Cancelled, "request cancelled by caller", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.Timeout, "upstream deadline exceeded", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errs.Wrap(errs.Timeout, "upstream deadline exceeded", err)
	}
	return errs.Wrap(errs.Transport, "failed to reach upstream", err)
}

// Close releases pooled connections. Called once at shutdown.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
