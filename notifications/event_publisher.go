package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/anjiri1684/tutor_ledger/models"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventPublisher forwards notifications to a Kafka topic keyed by recipient,
// so downstream consumers (push, analytics) see them in per-user order.
type EventPublisher struct {
	writer messageWriter
	topic  string
}

type notificationEvent struct {
	EventType string              `json:"event_type"`
	SentAt    string              `json:"sent_at"`
	Payload   models.Notification `json:"payload"`
}

func NewEventPublisher(brokers []string, topic string) *EventPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return &EventPublisher{writer: writer, topic: topic}
}

func (p *EventPublisher) Notify(ctx context.Context, n models.Notification) error {
	value, err := json.Marshal(notificationEvent{
		EventType: n.Category,
		SentAt:    time.Now().UTC().Format(time.RFC3339),
		Payload:   n,
	})
	if err != nil {
		return fmt.Errorf("marshal notification event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(n.UserID.String()),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish notification event: %w", err)
	}
	slog.Info("notification event published", "topic", p.topic, "user_id", n.UserID, "category", n.Category)
	return nil
}

func (p *EventPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		slog.Error("failed to close Kafka writer", "error", err)
		return err
	}
	return nil
}
