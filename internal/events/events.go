// Package events publishes inventory notifications after a transaction has
// committed. Delivery is best effort: the store remains the source of truth.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event types.
const (
	TypeSaleCompleted          = "sale.completed"
	TypeReplenishmentConfirmed = "replenishment.confirmed"
	TypeReplenishmentCreated   = "replenishment.created"
)

// Event is one notification. Key orders events of the same aggregate.
type Event struct {
	Type       string
	Key        string
	Payload    any
	OccurredAt time.Time
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages to a single topic.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s event: %w", e.Type, err)
		}
		occurred := e.OccurredAt
		if occurred.IsZero() {
			occurred = time.Now()
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.Key),
			Value: value,
			Time:  occurred,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(e.Type)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish events: %w", err)
	}
	return nil
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
