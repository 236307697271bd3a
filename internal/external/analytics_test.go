package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronwatch/internal/config"
	"cronwatch/internal/types"
)

func testAnalyticsConfig(endpoint string) config.AnalyticsConfig {
	return config.AnalyticsConfig{
		Endpoint:  endpoint,
		Timeout:   2 * time.Second,
		UserAgent: "Cronwatch-Signals/test",
	}
}

func sampleSignal() types.Signal {
	return types.Signal{
		Name:        types.SignalFirstCheckinReceived,
		ProjectID:   7,
		MonitorGUID: "4cd07899-0e95-43ec-8866-e8b0a8034e41",
		OccurredAt:  time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		TraceID:     "req-42",
	}
}

func TestAnalyticsEmit_PostsSignalJSON(t *testing.T) {
	var got types.Signal
	var contentType, userAgent, traceHeader string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		userAgent = r.Header.Get("User-Agent")
		traceHeader = r.Header.Get("X-Request-Id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	emitter := NewAnalyticsEmitter(testAnalyticsConfig(srv.URL))
	ctx := types.WithRequestID(context.Background(), "req-42")
	require.NoError(t, emitter.Emit(ctx, sampleSignal()))

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "Cronwatch-Signals/test", userAgent)
	assert.Equal(t, "req-42", traceHeader)
	assert.Equal(t, types.SignalFirstCheckinReceived, got.Name)
	assert.Equal(t, int64(7), got.ProjectID)
	assert.Equal(t, "req-42", got.TraceID)
}

func TestAnalyticsEmit_RetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	emitter := NewAnalyticsEmitter(testAnalyticsConfig(srv.URL),
		WithSleepFunc(func(time.Duration) {}))
	require.NoError(t, emitter.Emit(context.Background(), sampleSignal()))
	assert.Equal(t, 3, attempts)
}

func TestAnalyticsEmit_ExhaustedRetriesReturnUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	emitter := NewAnalyticsEmitter(testAnalyticsConfig(srv.URL),
		WithSleepFunc(func(time.Duration) {}))
	err := emitter.Emit(context.Background(), sampleSignal())
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamAnalytics, appErr.Code)
	assert.Equal(t, http.StatusBadGateway, appErr.HTTPStatus())
}

func TestAnalyticsEmit_ClientErrorIsNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	emitter := NewAnalyticsEmitter(testAnalyticsConfig(srv.URL),
		WithSleepFunc(func(time.Duration) {}))
	err := emitter.Emit(context.Background(), sampleSignal())
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamAnalytics, appErr.Code)
	assert.Equal(t, 1, attempts)
}

func TestAnalyticsEmit_UnreachableSink(t *testing.T) {
	emitter := NewAnalyticsEmitter(testAnalyticsConfig("http://127.0.0.1:1"),
		WithSleepFunc(func(time.Duration) {}))
	err := emitter.Emit(context.Background(), sampleSignal())
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamAnalytics, appErr.Code)
}

var _ types.SignalEmitter = (*AnalyticsEmitter)(nil)
