// Package main is the entry point for the check-in retention archiver.
//
// One invocation drains every check-in older than the retention window into
// compressed archive rows, one batch per transaction. Deployed as a
// scheduled Lambda in AWS; running the binary directly performs a single
// drain and exits.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"cronwatch/internal/archiver"
	"cronwatch/internal/config"
	"cronwatch/internal/db"
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
	logger.Info("cronwatch archiver starting", "environment", cfg.Environment)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	arch := archiver.New(
		archiver.NewDBTxRunner(db.NewTxManager(pool)),
		logger,
		archiver.WithRetention(cfg.CheckIn.RetentionDays),
		archiver.WithBatchSize(cfg.CheckIn.ArchiveBatchSize),
	)

	if isLambda() {
		lambda.Start(func(ctx context.Context) error {
			_, err := arch.Run(ctx)
			return err
		})
		return nil
	}

	total, err := arch.Run(context.Background())
	if err != nil {
		return fmt.Errorf("archiving: %w", err)
	}
	logger.Info("archival finished", "archived", total)
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
