// Package metrics emits ingestion telemetry to AWS CloudWatch.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"cronwatch/internal/types"
)

// Metric and dimension names published under the configured namespace.
const (
	MetricCheckInAccepted = "CheckInAccepted"
	MetricCheckInDropped  = "CheckInDropped"
	MetricMonitorsSwept   = "MonitorsSwept"

	DimStatus = "Status"
	DimReason = "Reason"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchCheckInMetrics publishes check-in counters to CloudWatch.
// Emission is fire-and-forget: a failed put is logged, never returned, so
// telemetry can never fail a check-in.
//
// Metrics emitted:
//   - CheckInAccepted: Dims {Status} -- one per recorded check-in
//   - CheckInDropped:  Dims {Reason} -- one per rejected request
//   - MonitorsSwept:   No dims       -- monitors marked missed per sweep run
type CloudWatchCheckInMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchCheckInMetrics creates a publisher for the given namespace.
func NewCloudWatchCheckInMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchCheckInMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchCheckInMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// IncrCheckInAccepted counts one recorded check-in by reported status.
func (m *CloudWatchCheckInMetrics) IncrCheckInAccepted(ctx context.Context, status types.CheckInStatus) {
	m.putCount(ctx, MetricCheckInAccepted, 1, []cwtypes.Dimension{
		{
			Name:  aws.String(DimStatus),
			Value: aws.String(string(status)),
		},
	})
}

// IncrCheckInDropped counts one rejected check-in request by reason
// (e.g. "rate_limited").
func (m *CloudWatchCheckInMetrics) IncrCheckInDropped(ctx context.Context, reason string) {
	m.putCount(ctx, MetricCheckInDropped, 1, []cwtypes.Dimension{
		{
			Name:  aws.String(DimReason),
			Value: aws.String(reason),
		},
	})
}

// RecordMonitorsSwept reports how many overdue monitors one sweep run marked
// as missed.
func (m *CloudWatchCheckInMetrics) RecordMonitorsSwept(ctx context.Context, count int) {
	m.putCount(ctx, MetricMonitorsSwept, float64(count), nil)
}

func (m *CloudWatchCheckInMetrics) putCount(ctx context.Context, name string, value float64, dims []cwtypes.Dimension) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(value),
				Unit:       cwtypes.StandardUnitCount,
				Timestamp:  aws.Time(time.Now().UTC()),
				Dimensions: dims,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to put metric data",
			"metric", name,
			"error", err.Error(),
		)
	}
}
