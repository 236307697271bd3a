// Package ratelimit provides the fixed-window admission gate used by the
// check-in recorder. The limiter is approximate by design: counters live in
// Redis with a window-length TTL, two requests racing at a window boundary
// may both pass, and any Redis failure fails open so a limiter outage never
// blocks ingestion.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"cronwatch/internal/types"
)

// CheckInScopeKey builds the per-monitor scope key for check-in admission.
func CheckInScopeKey(monitorID int64) string {
	return fmt.Sprintf("monitor-checkins:%d", monitorID)
}

// FixedWindowLimiter implements types.RateLimiter on top of Redis using
// INCR + EXPIRE. The first increment in a window sets the TTL; the counter
// expires with the window.
type FixedWindowLimiter struct {
	client  *redis.Client
	logger  *slog.Logger
	prefix  string
	timeout time.Duration
}

var _ types.RateLimiter = (*FixedWindowLimiter)(nil)

// NewFixedWindowLimiter constructs a Redis-backed limiter and verifies
// connectivity with a short ping.
func NewFixedWindowLimiter(addr, password string, db int, logger *slog.Logger) (*FixedWindowLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &FixedWindowLimiter{
		client:  client,
		logger:  logger,
		prefix:  "cronwatch:ratelimit:",
		timeout: 250 * time.Millisecond,
	}, nil
}

// IsLimited increments the window counter for scopeKey and reports whether
// the count now exceeds limit. A non-positive limit disables the gate.
func (l *FixedWindowLimiter) IsLimited(ctx context.Context, scopeKey string, limit int, window time.Duration) bool {
	if limit <= 0 {
		return false
	}
	if window <= 0 {
		window = time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	key := l.prefix + scopeKey
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logRedisError("incr", scopeKey, err)
		return false
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, window).Err(); err != nil {
			l.logRedisError("expire", scopeKey, err)
		}
	}

	return count > int64(limit)
}

// Ping reports limiter backend health. Used by the API health endpoint.
func (l *FixedWindowLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connection pool.
func (l *FixedWindowLimiter) Close() {
	if l.client != nil {
		_ = l.client.Close()
	}
}

func (l *FixedWindowLimiter) logRedisError(op, scopeKey string, err error) {
	if l.logger == nil {
		return
	}
	l.logger.Error("rate limiter redis error",
		slog.String("op", op),
		slog.String("scope_key", scopeKey),
		slog.String("error", err.Error()),
	)
}
