package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"cronwatch/internal/config"
	"cronwatch/internal/types"
)

// AnalyticsEmitter delivers bootstrap signals to an HTTP analytics sink.
// It implements types.SignalEmitter; delivery goes through the BaseClient
// so a flapping sink trips the breaker instead of stalling check-ins.
type AnalyticsEmitter struct {
	base     *BaseClient
	endpoint string
}

// NewAnalyticsEmitter creates an emitter targeting the configured endpoint.
func NewAnalyticsEmitter(cfg config.AnalyticsConfig, opts ...BaseClientOption) *AnalyticsEmitter {
	base := NewBaseClient(
		&http.Client{Timeout: cfg.Timeout},
		"analytics",
		DefaultRetryPolicy(),
		cfg.UserAgent,
		types.ErrCodeUpstreamAnalytics,
		opts...,
	)
	return &AnalyticsEmitter{
		base:     base,
		endpoint: cfg.Endpoint,
	}
}

// Emit posts the signal as a JSON document. Any non-2xx response is an
// error; the caller decides whether delivery failures matter.
func (e *AnalyticsEmitter) Emit(ctx context.Context, sig types.Signal) error {
	body, err := json.Marshal(sig)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to marshal analytics signal", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to build analytics request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.NewAppError(types.ErrCodeUpstreamAnalytics,
			fmt.Sprintf("analytics sink rejected signal with status %d", resp.StatusCode), nil)
	}
	return nil
}
