package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// ChangeSignal is the cross-instance form of a room change notification.
// It carries no queue data; receivers fan it out to their local websocket
// subscribers, who then re-fetch the snapshot over HTTP.
type ChangeSignal struct {
	Type      string    `json:"type"`
	RoomID    uuid.UUID `json:"room_id"`
	Seq       uint64    `json:"seq"`
	Origin    string    `json:"origin"` // emitting instance, to skip self-delivery
	Timestamp time.Time `json:"timestamp"`
}

// KafkaClient relays room change signals between service instances. With a
// single instance the relay is inert; subscribers on other instances stay
// consistent through it.
type KafkaClient struct {
	writer   *kafka.Writer
	reader   *kafka.Reader
	instance string
}

func NewKafkaClient(brokers []string, topic string, groupID string) *KafkaClient {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
	})

	return &KafkaClient{
		writer:   writer,
		reader:   reader,
		instance: uuid.New().String(),
	}
}

// InstanceID identifies this process in emitted signals.
func (k *KafkaClient) InstanceID() string {
	return k.instance
}

// PublishChange emits a change signal. The room id keys the message so one
// room's signals stay ordered within a partition.
func (k *KafkaClient) PublishChange(ctx context.Context, signal ChangeSignal) error {
	signal.Origin = k.instance
	if signal.Timestamp.IsZero() {
		signal.Timestamp = time.Now()
	}

	messageJSON, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(signal.RoomID.String()),
		Value: messageJSON,
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// Consume reads signals until ctx is cancelled, invoking handler for every
// signal emitted by another instance.
func (k *KafkaClient) Consume(ctx context.Context, handler func(ChangeSignal) error) error {
	for {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		var signal ChangeSignal
		if err := json.Unmarshal(msg.Value, &signal); err != nil {
			return fmt.Errorf("failed to unmarshal signal: %w", err)
		}

		if signal.Origin == k.instance {
			continue // already delivered locally by the hub
		}

		if err := handler(signal); err != nil {
			return fmt.Errorf("failed to handle signal: %w", err)
		}
	}
}

func (k *KafkaClient) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := k.reader.Close(); err != nil {
		return fmt.Errorf("failed to close reader: %w", err)
	}
	return nil
}
