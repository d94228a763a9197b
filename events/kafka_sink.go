package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const DefaultKafkaTopic = "inventory.events"

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes events to a topic keyed by product ID, so all events for a
// product land on one partition in order.
type KafkaSink struct {
	writer MessageWriter
	topic  string
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaSink{writer: writer, topic: topic}
}

// NewKafkaSinkWithWriter is used by tests to inject a writer.
func NewKafkaSinkWithWriter(w MessageWriter, topic string) *KafkaSink {
	return &KafkaSink{writer: w, topic: topic}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Send(ctx context.Context, evt Event) error {
	data, err := Marshal(evt)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(evt.ProductID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write to %s failed: %w", k.topic, err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
