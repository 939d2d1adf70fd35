// Package config loads the gateway's configuration from environment
// variables into a frozen struct, applying the defaults and validation
// rules of the external interface contract. Nothing downstream of
// Load reads the environment directly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the frozen, validated configuration the resilience core and
// HTTP surface are constructed from.
type Config struct {
	WeatherstackAPIKey  string
	WeatherstackBaseURL string

	CacheTTL         time.Duration
	StaleCacheMaxAge time.Duration
	MaxCacheEntries  int

	RateLimitPerMinute int

	RetryMaxAttempts int
	RetryBackoffBase time.Duration

	BreakerFailureThreshold     int
	BreakerRecoveryTimeout      time.Duration
	BreakerFailureRateThreshold float64
	BreakerRecentOutcomeWindow  int

	HTTPConnectTimeout time.Duration
	HTTPReadTimeout    time.Duration
	HTTPTotalTimeout   time.Duration

	LogLevel string
}

// defaults mirrors the "Default" column of the configuration table.
func defaults() Config {
	return Config{
		WeatherstackBaseURL:         "http://api.weatherstack.com",
		CacheTTL:                    300 * time.Second,
		StaleCacheMaxAge:            3600 * time.Second,
		MaxCacheEntries:             1000,
		RateLimitPerMinute:          60,
		RetryMaxAttempts:            3,
		RetryBackoffBase:            1 * time.Second,
		BreakerFailureThreshold:     5,
		BreakerRecoveryTimeout:      60 * time.Second,
		BreakerFailureRateThreshold: 0.5,
		BreakerRecentOutcomeWindow:  20,
		HTTPConnectTimeout:          3 * time.Second,
		HTTPReadTimeout:             5 * time.Second,
		HTTPTotalTimeout:            8 * time.Second,
		LogLevel:                    "INFO",
	}
}

// Load reads configuration from the process environment. It returns an
// error if WEATHERSTACK_API_KEY is missing or any numeric variable fails
// to parse; the caller (cmd/weatherstack-gatewayd) is responsible for
// turning that error into the documented exit code 1 diagnostic.
func Load(getenv func(string) string) (Config, error) {
	cfg := defaults()

	cfg.WeatherstackAPIKey = getenv("WEATHERSTACK_API_KEY")
	if cfg.WeatherstackAPIKey == "" {
		return Config{}, fmt.Errorf("WEATHERSTACK_API_KEY is required: set it in the environment " +
			"or pass it to the process (get a free key at https://weatherstack.com/signup/free)")
	}

	if v := getenv("WEATHERSTACK_BASE_URL"); v != "" {
		cfg.WeatherstackBaseURL = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	var err error
	if cfg.CacheTTL, err = durationSeconds(getenv, "CACHE_TTL_SECONDS", cfg.CacheTTL); err != nil {
		return Config{}, err
	}
	if cfg.StaleCacheMaxAge, err = durationSeconds(getenv, "STALE_CACHE_MAX_AGE_SECONDS", cfg.StaleCacheMaxAge); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitPerMinute, err = intVar(getenv, "RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute); err != nil {
		return Config{}, err
	}
	if cfg.RetryMaxAttempts, err = intVar(getenv, "RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts); err != nil {
		return Config{}, err
	}
	if cfg.RetryBackoffBase, err = durationFloatSeconds(getenv, "RETRY_BACKOFF_BASE", cfg.RetryBackoffBase); err != nil {
		return Config{}, err
	}
	if cfg.BreakerFailureThreshold, err = intVar(getenv, "CIRCUIT_BREAKER_FAILURE_THRESHOLD", cfg.BreakerFailureThreshold); err != nil {
		return Config{}, err
	}
	if cfg.BreakerRecoveryTimeout, err = durationSeconds(getenv, "CIRCUIT_BREAKER_RECOVERY_TIMEOUT", cfg.BreakerRecoveryTimeout); err != nil {
		return Config{}, err
	}
	if cfg.BreakerFailureRateThreshold, err = floatVar(getenv, "CIRCUIT_BREAKER_FAILURE_RATE_THRESHOLD", cfg.BreakerFailureRateThreshold); err != nil {
		return Config{}, err
	}
	if cfg.HTTPConnectTimeout, err = durationFloatSeconds(getenv, "HTTP_CONNECT_TIMEOUT", cfg.HTTPConnectTimeout); err != nil {
		return Config{}, err
	}
	if cfg.HTTPReadTimeout, err = durationFloatSeconds(getenv, "HTTP_READ_TIMEOUT", cfg.HTTPReadTimeout); err != nil {
		return Config{}, err
	}
	if cfg.HTTPTotalTimeout, err = durationFloatSeconds(getenv, "HTTP_TOTAL_TIMEOUT", cfg.HTTPTotalTimeout); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func intVar(getenv func(string) string, name string, fallback int) (int, error) {
	v := getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", name, v, err)
	}
	return n, nil
}

func floatVar(getenv func(string) string, name string, fallback float64) (float64, error) {
	v := getenv(name)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid float %q: %w", name, v, err)
	}
	return f, nil
}

func durationSeconds(getenv func(string) string, name string, fallback time.Duration) (time.Duration, error) {
	v := getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer seconds %q: %w", name, v, err)
	}
	return time.Duration(n) * time.Second, nil
}

func durationFloatSeconds(getenv func(string) string, name string, fallback time.Duration) (time.Duration, error) {
	v := getenv(name)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid float seconds %q: %w", name, v, err)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// OSEnviron is the production environment accessor, passed to Load as
// os.Getenv. Exposed so main doesn't need to import os just for this.
var OSEnviron = os.Getenv
