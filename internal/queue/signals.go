// Package queue provides the SQS-based signal producer that delivers
// one-time project bootstrap signals to downstream workers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"cronwatch/internal/config"
	"cronwatch/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SignalPublisher implements types.SignalEmitter on top of a single SQS
// queue. Each signal is serialized as one JSON message; the signal name is
// duplicated into a message attribute so consumers can filter without
// parsing the body.
type SignalPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewSignalPublisher creates a publisher targeting the signal queue from
// the AWS configuration.
func NewSignalPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *SignalPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignalPublisher{
		client:   client,
		queueURL: awsCfg.SignalQueueURL,
		logger:   logger,
	}
}

// Emit serializes the signal and sends it to the configured queue.
func (p *SignalPublisher) Emit(ctx context.Context, sig types.Signal) error {
	body, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal signal: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"signal": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(sig.Name)),
			},
		},
	}

	_, err = p.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("queue: failed to send signal to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "bootstrap signal sent",
		"queue_url", p.queueURL,
		"signal", string(sig.Name),
		"project_id", sig.ProjectID,
		"monitor_guid", sig.MonitorGUID,
		"trace_id", sig.TraceID,
	)

	return nil
}
