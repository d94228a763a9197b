package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
)

// MessageHandler processes one SQS message body. Returning an error leaves
// the message on the queue for redelivery after the visibility timeout.
type MessageHandler func(ctx context.Context, body string) error

// SQSConsumer long-polls a queue and deletes messages its handler accepts.
type SQSConsumer struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

func NewSQSConsumer(cfg sdkaws.Config, queueURL string, logger *zap.Logger) *SQSConsumer {
	return &SQSConsumer{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
		logger:   logger,
	}
}

// StartPolling runs until ctx is cancelled.
func (c *SQSConsumer) StartPolling(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Starting SQS polling", zap.String("queue_url", c.queueURL))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("SQS polling stopped", zap.String("queue_url", c.queueURL))
			return ctx.Err()
		default:
		}

		if err := c.pollOnce(ctx, handler); err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			c.logger.Warn("Error polling SQS", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
		}
	}
}

func (c *SQSConsumer) pollOnce(ctx context.Context, handler MessageHandler) error {
	result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &c.queueURL,
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   30,
	})
	if err != nil {
		return fmt.Errorf("failed to receive messages: %w", err)
	}

	for _, msg := range result.Messages {
		if msg.Body == nil {
			continue
		}
		if err := handler(ctx, *msg.Body); err != nil {
			c.logger.Warn("Failed to process SQS message, will retry", zap.String("message_id", sdkaws.ToString(msg.MessageId)), zap.Error(err))
			continue
		}
		if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      &c.queueURL,
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			c.logger.Warn("Failed to delete SQS message", zap.String("message_id", sdkaws.ToString(msg.MessageId)), zap.Error(err))
		}
	}
	return nil
}
