package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"duet/internal/models"

	"github.com/segmentio/kafka-go"
)

const EventMessageCreated = "message.created"

// Notifier hands committed messages to the push delivery service.
type Notifier interface {
	MessageCreated(ctx context.Context, msg models.Message) error
	Close() error
}

// Event is the record written for every committed message.
type Event struct {
	Type        string         `json:"type"`
	RecipientID string         `json:"recipientId"`
	Message     models.Message `json:"message"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaNotifier struct {
	w   messageWriter
	now func() time.Time
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaNotifier{w: w, now: time.Now}
}

// MessageCreated publishes the message keyed by chat id, so every chat
// stays on one partition and keeps its order.
func (n *KafkaNotifier) MessageCreated(ctx context.Context, msg models.Message) error {
	recipient, ok := models.Peer(msg.Sender.UserID(), msg.ChatID)
	if !ok {
		return fmt.Errorf("%w: no recipient for chat %q", models.ErrProtocol, msg.ChatID)
	}

	value, err := json.Marshal(Event{
		Type:        EventMessageCreated,
		RecipientID: recipient,
		Message:     msg,
	})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := n.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.ChatID),
		Value: value,
		Time:  n.now(),
	}); err != nil {
		return fmt.Errorf("failed to publish %s: %w", EventMessageCreated, err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error { return n.w.Close() }

// Nop is used when no brokers are configured.
type Nop struct{}

func (Nop) MessageCreated(context.Context, models.Message) error { return nil }
func (Nop) Close() error                                         { return nil }
