package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSPublisher is a minimal interface for publishing messages to SNS.
type SNSPublisher interface {
	Publish(ctx context.Context, topicArn string, message []byte, attributes map[string]string) error
}

type SNSClient struct {
	client *sns.Client
}

func NewSNSClient(cfg sdkaws.Config) *SNSClient {
	return &SNSClient{client: sns.NewFromConfig(cfg)}
}

// Publish sends message to topicArn. Every message carries a "source"
// attribute; attributes adds more (the event sink sets event_type and
// product_id) so subscriptions can use filter policies. Empty values are
// skipped because SNS rejects them.
func (s *SNSClient) Publish(ctx context.Context, topicArn string, message []byte, attributes map[string]string) error {
	if topicArn == "" {
		return fmt.Errorf("empty topicArn")
	}
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          sdkaws.String(topicArn),
		Message:           sdkaws.String(string(message)),
		MessageAttributes: messageAttributes(attributes),
	})
	if err != nil {
		return fmt.Errorf("sns publish failed for topic %s: %w", topicArn, err)
	}
	return nil
}

func messageAttributes(attributes map[string]string) map[string]types.MessageAttributeValue {
	out := map[string]types.MessageAttributeValue{
		"source": {DataType: sdkaws.String("String"), StringValue: sdkaws.String("inventory-reservation-service")},
	}
	for k, v := range attributes {
		if v == "" {
			continue
		}
		out[k] = types.MessageAttributeValue{DataType: sdkaws.String("String"), StringValue: sdkaws.String(v)}
	}
	return out
}
