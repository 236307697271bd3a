package metrics

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"cronwatch/internal/checkin"
	"cronwatch/internal/types"
)

// mockCloudWatchClient records PutMetricData calls for verification.
type mockCloudWatchClient struct {
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

const testNamespace = "CronwatchTest"

func TestIncrCheckInAccepted(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatchCheckInMetrics(cw, testNamespace, nil)

	m.IncrCheckInAccepted(context.Background(), types.CheckInStatusOK)

	if len(cw.calls) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(cw.calls))
	}
	input := cw.calls[0]
	if *input.Namespace != testNamespace {
		t.Errorf("expected namespace %q, got %q", testNamespace, *input.Namespace)
	}
	if len(input.MetricData) != 1 {
		t.Fatalf("expected 1 metric datum, got %d", len(input.MetricData))
	}

	datum := input.MetricData[0]
	if *datum.MetricName != MetricCheckInAccepted {
		t.Errorf("expected metric name %q, got %q", MetricCheckInAccepted, *datum.MetricName)
	}
	if *datum.Value != 1.0 {
		t.Errorf("expected value 1.0, got %f", *datum.Value)
	}
	if datum.Unit != cwtypes.StandardUnitCount {
		t.Errorf("expected unit Count, got %s", datum.Unit)
	}
	assertDimension(t, datum.Dimensions, DimStatus, string(types.CheckInStatusOK))
}

func TestIncrCheckInDropped(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatchCheckInMetrics(cw, testNamespace, nil)

	m.IncrCheckInDropped(context.Background(), "rate_limited")

	if len(cw.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(cw.calls))
	}
	datum := cw.calls[0].MetricData[0]
	if *datum.MetricName != MetricCheckInDropped {
		t.Errorf("expected metric name %q, got %q", MetricCheckInDropped, *datum.MetricName)
	}
	assertDimension(t, datum.Dimensions, DimReason, "rate_limited")
}

func TestRecordMonitorsSwept(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatchCheckInMetrics(cw, testNamespace, nil)

	m.RecordMonitorsSwept(context.Background(), 42)

	if len(cw.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(cw.calls))
	}
	datum := cw.calls[0].MetricData[0]
	if *datum.MetricName != MetricMonitorsSwept {
		t.Errorf("expected metric name %q, got %q", MetricMonitorsSwept, *datum.MetricName)
	}
	if *datum.Value != 42.0 {
		t.Errorf("expected value 42.0, got %f", *datum.Value)
	}
	if len(datum.Dimensions) != 0 {
		t.Errorf("expected no dimensions, got %v", datum.Dimensions)
	}
}

func TestPutMetricData_ErrorIsSwallowed(t *testing.T) {
	// CloudWatch errors are logged, never returned (fire-and-forget).
	cw := &mockCloudWatchClient{returnErr: fmt.Errorf("cloudwatch unavailable")}
	m := NewCloudWatchCheckInMetrics(cw, testNamespace, nil)

	m.IncrCheckInAccepted(context.Background(), types.CheckInStatusError)

	if len(cw.calls) != 1 {
		t.Errorf("expected 1 call attempt, got %d", len(cw.calls))
	}
}

// assertDimension verifies a specific dimension exists with the expected value.
func assertDimension(t *testing.T, dims []cwtypes.Dimension, name, expectedValue string) {
	t.Helper()
	for _, d := range dims {
		if *d.Name == name {
			if *d.Value != expectedValue {
				t.Errorf("dimension %q: expected value %q, got %q", name, expectedValue, *d.Value)
			}
			return
		}
	}
	t.Errorf("dimension %q not found in %v", name, dims)
}

// Compile-time check against the recorder-facing metrics interface.
var _ checkin.Metrics = (*CloudWatchCheckInMetrics)(nil)
