// Command weatherstack-gatewayd runs the resilient Weatherstack HTTP
// gateway: it loads configuration from the environment, wires the
// cache, circuit breaker, retry executor, upstream client, and metrics
// registry into a Request Orchestrator, and serves it over HTTP until
// signalled to shut down.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/weatherstack/gateway/internal/breaker"
	"github.com/weatherstack/gateway/internal/cache"
	"github.com/weatherstack/gateway/internal/clock"
	"github.com/weatherstack/gateway/internal/config"
	"github.com/weatherstack/gateway/internal/gateway"
	"github.com/weatherstack/gateway/internal/httpapi"
	"github.com/weatherstack/gateway/internal/metrics"
	"github.com/weatherstack/gateway/internal/retry"
	"github.com/weatherstack/gateway/internal/upstream"
)

// version is overridden at build time via -ldflags.
var version = "dev"

var (
	addr        string
	configCheck bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "weatherstack-gatewayd",
		Short:         "Resilient HTTP gateway in front of the Weatherstack API",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&addr, "addr", ":8080", "address to listen on")
	root.PersistentFlags().BoolVar(&configCheck, "config-check", false, "load and validate configuration, then exit")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the gateway version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(config.OSEnviron)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if configCheck {
		fmt.Println("configuration OK")
		return nil
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting weatherstack-gateway", zap.String("version", version), zap.String("addr", addr))

	clk := clock.System{}
	// The default registerer is what promhttp.Handler serves at /metrics/prom.
	metricsRegistry := metrics.New(prometheus.DefaultRegisterer)

	cacheStore := cache.New(cfg.CacheTTL, cfg.StaleCacheMaxAge, cfg.MaxCacheEntries, clk)

	cb := breaker.New(breaker.Settings{
		Name:                 "weatherstack",
		FailureThreshold:     uint32(cfg.BreakerFailureThreshold),
		FailureRateThreshold: cfg.BreakerFailureRateThreshold,
		RecentOutcomeWindow:  cfg.BreakerRecentOutcomeWindow,
		RecoveryTimeout:      cfg.BreakerRecoveryTimeout,
		Clock:                clk,
		OnStateChange: func(name string, from, to breaker.State) {
			logger.Warn("circuit breaker transition",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
			if from == breaker.StateClosed && to == breaker.StateOpen {
				metricsRegistry.RecordBreakerOpen()
			}
		},
	})

	upstreamClient := upstream.New(upstream.Config{
		BaseURL:        cfg.WeatherstackBaseURL,
		APIKey:         cfg.WeatherstackAPIKey,
		ConnectTimeout: cfg.HTTPConnectTimeout,
		ReadTimeout:    cfg.HTTPReadTimeout,
		TotalTimeout:   cfg.HTTPTotalTimeout,
	})
	defer upstreamClient.Close()

	retrier := retry.New(upstreamClient.Fetch, retry.Settings{
		MaxAttempts: cfg.RetryMaxAttempts,
		BackoffBase: cfg.RetryBackoffBase,
		Clock:       clk,
		OnRetry:     metricsRegistry.RecordRetry,
	})

	orchestrator := gateway.New(cacheStore, cb, retrier, metricsRegistry, clk)

	server := httpapi.NewServer(httpapi.Config{
		Orchestrator:       orchestrator,
		Metrics:            metricsRegistry,
		Breaker:            cb,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	server.StartSweeper(sweepCtx, 5*time.Minute)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: server,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
		logger.Info("shutdown signal received, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}

	logger.Info("shutdown complete")
	return nil
}
