// Package main is the entry point for the overdue monitor sweeper.
//
// One invocation runs one sweep pass: list monitors whose next expected
// check-in plus grace margin has passed, record a MISSED check-in for each,
// and mark them timed out. Deployed as a scheduled Lambda in AWS; running
// the binary directly performs a single pass and exits, which suits local
// development and cron-style deployments.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"cronwatch/internal/checkin"
	"cronwatch/internal/config"
	"cronwatch/internal/db"
	"cronwatch/internal/metrics"
	"cronwatch/internal/sweeper"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("cronwatch sweeper starting", "environment", cfg.Environment)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	var sink sweeper.Metrics = sweeper.NopMetrics{}
	if cfg.Observability.EnableMetrics {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS configuration: %w", err)
		}
		cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		sink = metrics.NewCloudWatchCheckInMetrics(cwClient, cfg.Observability.MetricNamespace, logger)
	}

	sw := sweeper.New(
		checkin.NewDBTxManager(db.NewTxManager(pool)),
		db.NewMonitorRepository(pool),
		sink,
		logger,
		sweeper.WithMargin(cfg.CheckIn.DefaultMarginMinutes),
		sweeper.WithBatchSize(cfg.CheckIn.SweepBatchSize),
		sweeper.WithConcurrency(cfg.CheckIn.SweepConcurrency),
		sweeper.WithDefaultEnvironment(cfg.CheckIn.DefaultEnvironment),
	)

	if isLambda() {
		lambda.Start(func(ctx context.Context) error {
			_, err := sw.Sweep(ctx)
			return err
		})
		return nil
	}

	count, err := sw.Sweep(context.Background())
	if err != nil {
		return fmt.Errorf("sweeping: %w", err)
	}
	logger.Info("sweep finished", "swept", count)
	return nil
}

// isLambda reports whether the process runs inside the AWS Lambda runtime.
func isLambda() bool {
	_, ok := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	return ok
}

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
