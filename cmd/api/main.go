// Package main is the entry point for the cronwatch ingestion API server.
//
// It loads configuration from the environment, connects the database pool
// and the Redis-backed rate limiter, wires the check-in recorder with its
// signal emitter and metrics, and serves the HTTP API with graceful
// shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"

	"cronwatch/internal/api/handlers"
	"cronwatch/internal/auth"
	"cronwatch/internal/checkin"
	"cronwatch/internal/config"
	"cronwatch/internal/core"
	"cronwatch/internal/db"
	"cronwatch/internal/external"
	"cronwatch/internal/metrics"
	"cronwatch/internal/queue"
	"cronwatch/internal/ratelimit"
	"cronwatch/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("cronwatch API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}

	limiter, err := ratelimit.NewFixedWindowLimiter(
		cfg.Redis.Addr, cfg.Redis.Password.Unmask(), cfg.Redis.DB, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("connecting redis: %w", err)
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		pool.Close()
		limiter.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.RegisterCloser(func() error { pool.Close(); return nil })
	srv.RegisterCloser(func() error { limiter.Close(); return nil })

	srv.Authenticator = auth.NewService(db.NewCredentialRepository(pool), types.RealClock{}, logger)
	srv.HealthProbes = []core.HealthProbe{
		core.ProbeFunc{ProbeName: "database", Fn: pool.Ping},
		core.ProbeFunc{ProbeName: "redis", Fn: limiter.Ping},
	}

	emitter, checkinMetrics, err := buildTelemetry(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("configuring telemetry: %w", err)
	}

	notifier := checkin.NewBootstrapNotifier(emitter, types.RealClock{}, logger)
	recorder := checkin.NewRecorder(
		checkin.NewDBTxManager(db.NewTxManager(pool)),
		limiter,
		checkinMetrics,
		notifier,
		logger,
		checkin.WithQuota(cfg.CheckIn.RateLimit, cfg.CheckIn.RateLimitWindow),
		checkin.WithDefaultEnvironment(cfg.CheckIn.DefaultEnvironment),
	)

	repos := db.NewTxRepos(pool)
	checkInHandler := handlers.NewCheckInHandler(
		repos.Monitors,
		repos.Projects,
		recorder,
		repos.CheckIns,
		srv.Validator,
		logger,
		cfg.Server.APIExternalURL,
	)
	srv.APIRouteRegistrars = append(srv.APIRouteRegistrars, func(r chi.Router) {
		checkInHandler.RegisterRoutes(r, srv.RequireFullAccess)
	})

	srv.MountRoutes()

	return serveHTTP(srv, cfg, logger)
}

// buildTelemetry selects the bootstrap signal emitter and the metrics sink
// from configuration. The signal queue wins over the analytics endpoint;
// with neither configured, signals are recorded in project flags only. A
// disabled metrics flag yields a no-op sink.
func buildTelemetry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (types.SignalEmitter, checkin.Metrics, error) {
	var (
		emitter types.SignalEmitter
		sink    checkin.Metrics = checkin.NopMetrics{}
	)

	needsAWS := cfg.AWS.SignalQueueURL != "" || cfg.Observability.EnableMetrics
	if needsAWS {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return nil, nil, fmt.Errorf("loading AWS configuration: %w", err)
		}

		if cfg.AWS.SignalQueueURL != "" {
			sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
				if cfg.AWS.EndpointURL != "" {
					o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
				}
			})
			emitter = queue.NewSignalPublisher(sqsClient, cfg.AWS, logger)
		}

		if cfg.Observability.EnableMetrics {
			cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
				if cfg.AWS.EndpointURL != "" {
					o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
				}
			})
			sink = metrics.NewCloudWatchCheckInMetrics(cwClient, cfg.Observability.MetricNamespace, logger)
		}
	}

	if emitter == nil && cfg.Analytics.Endpoint != "" {
		emitter = external.NewAnalyticsEmitter(cfg.Analytics)
	}

	return emitter, sink, nil
}

// serveHTTP runs the server until a shutdown signal arrives, then drains
// in-flight requests and releases resources.
func serveHTTP(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON structured logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
