// Package kafka publishes ledger events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tinoosan/kiosk-ledger/internal/events"
)

type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher writes to topic on brokers. Messages are keyed by group id so
// all events of a group land on the same partition.
func NewPublisher(brokers []string, topic string) *Publisher {
	if topic == "" {
		topic = events.TopicGroupCommitted
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 5 * time.Second,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, ev events.GroupCommitted) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.GroupID.String()),
		Value: data,
		Time:  ev.OccurredAt(),
	})
}

func (p *Publisher) Close() error { return p.writer.Close() }
