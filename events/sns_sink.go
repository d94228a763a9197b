package events

import (
	"context"

	aws_pkg "github.com/yashrajoria/inventory-reservation-service/pkg/aws"
)

// SNSSink publishes events to an SNS topic for external observers.
type SNSSink struct {
	publisher aws_pkg.SNSPublisher
	topicArn  string
}

func NewSNSSink(publisher aws_pkg.SNSPublisher, topicArn string) *SNSSink {
	return &SNSSink{publisher: publisher, topicArn: topicArn}
}

func (s *SNSSink) Name() string { return "sns" }

func (s *SNSSink) Send(ctx context.Context, evt Event) error {
	data, err := Marshal(evt)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, s.topicArn, data, map[string]string{
		"event_type": string(evt.Type),
		"product_id": evt.ProductID,
	})
}
