// Package notification turns booking events into guest emails.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/arunvm123/campsite/model"
	"github.com/segmentio/kafka-go"
)

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Sender delivers a rendered email
type Sender interface {
	Send(ctx context.Context, email *EmailTemplate) error
}

// LogSender only logs the email; there is no mail provider wired in yet.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, email *EmailTemplate) error {
	s.log.Info("mock email sent", "to", email.To, "subject", email.Subject, "body", email.Body)
	return nil
}

type Processor struct {
	reader MessageReader
	sender Sender
	log    *slog.Logger

	messagesProcessed int64
}

func NewProcessor(reader MessageReader, sender Sender, log *slog.Logger) *Processor {
	return &Processor{
		reader: reader,
		sender: sender,
		log:    log.With("component", "notification_processor"),
	}
}

// Run consumes booking events until ctx is canceled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		msg, err := p.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.log.Error("error reading message", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if err := p.Handle(ctx, msg); err != nil {
			p.log.Error("error processing notification", "error", err, "offset", msg.Offset)
		}

		atomic.AddInt64(&p.messagesProcessed, 1)
	}
}

// Handle processes one booking event message.
func (p *Processor) Handle(ctx context.Context, msg kafka.Message) error {
	var event model.BookingEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal booking event: %w", err)
	}

	p.log.Info("processing notification", "type", event.Type, "booking_id", event.BookingID)

	email, ok := GenerateEmail(event)
	if !ok {
		p.log.Warn("unknown booking event type", "type", event.Type)
		return nil
	}

	if err := p.sender.Send(ctx, email); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (p *Processor) MessagesProcessed() int64 {
	return atomic.LoadInt64(&p.messagesProcessed)
}
