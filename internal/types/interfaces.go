package types

import (
	"context"
	"time"
)

// RateLimiter is the admission-control gate consulted before any check-in
// touches persistence. Implementations are fixed-window and approximate: two
// concurrent requests may both pass near the boundary, which is acceptable.
// Implementations must fail open on backend errors so a limiter outage never
// blocks ingestion.
type RateLimiter interface {
	// IsLimited reports whether the given scope key has exceeded limit
	// events within the current window.
	IsLimited(ctx context.Context, scopeKey string, limit int, window time.Duration) bool
}

// SignalEmitter delivers a one-time bootstrap signal to its consumers.
// Delivery is best-effort: callers swallow and log errors so a signal
// failure never rolls back the check-in that produced it.
type SignalEmitter interface {
	Emit(ctx context.Context, sig Signal) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }
