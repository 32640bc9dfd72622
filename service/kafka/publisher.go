package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arunvm123/campsite/config"
	"github.com/arunvm123/campsite/model"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// BookingEventPublisher writes booking events keyed by booking id, so every
// event of one booking lands on the same partition.
type BookingEventPublisher struct {
	writer MessageWriter
}

func NewBookingEventPublisher(cfg *config.Kafka) *BookingEventPublisher {
	return NewBookingEventPublisherWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.BookingEventsTopic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	})
}

func NewBookingEventPublisherWithWriter(writer MessageWriter) *BookingEventPublisher {
	return &BookingEventPublisher{writer: writer}
}

func (p *BookingEventPublisher) Publish(ctx context.Context, event model.BookingEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal booking event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.BookingID),
		Value: msgBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to publish booking event: %w", err)
	}
	return nil
}

func (p *BookingEventPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher is used when Kafka is disabled
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, model.BookingEvent) error { return nil }
func (NoopPublisher) Close() error                                     { return nil }
