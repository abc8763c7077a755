// Package kafka publishes outbox events to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xenking/kart-store/internal/domain/event"
)

// Header names carried on every message.
const (
	HeaderEventID   = "event-id"
	HeaderEventType = "event-type"
)

// Publisher writes events synchronously, partitioned by event key so all
// events of one order land on the same partition.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a Publisher for topic on brokers.
func NewPublisher(brokers []string, topic string, lg *zap.Logger) *Publisher {
	return &Publisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			lg.Warn("Kafka writer error", zap.String("detail", fmt.Sprintf(msg, args...)))
		}),
	}}
}

// Publish writes all events and blocks until the brokers acknowledge them.
func (p *Publisher) Publish(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, Messages(events)...); err != nil {
		return fmt.Errorf("writing %d messages to %s: %w", len(events), p.writer.Topic, err)
	}
	return nil
}

// Close flushes pending writes and releases connections.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Messages converts events to Kafka messages.
func Messages(events []event.Event) []kafka.Message {
	msgs := make([]kafka.Message, len(events))
	for i, e := range events {
		msgs[i] = kafka.Message{
			Key:   []byte(e.Key),
			Value: e.Payload,
			Time:  e.CreatedAt,
			Headers: []kafka.Header{
				{Key: HeaderEventID, Value: []byte(e.ID.String())},
				{Key: HeaderEventType, Value: []byte(e.Type)},
			},
		}
	}
	return msgs
}
