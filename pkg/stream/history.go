package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/crypto-stream/pkg/models"
)

// KafkaWriter is the producer side of *kafka.Writer.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaHistory is a history sink that appends updates to a topic keyed by symbol,
// so every update of one symbol lands on the same partition in fetch order.
type KafkaHistory struct {
	writer KafkaWriter
}

func NewKafkaHistory(writer KafkaWriter) *KafkaHistory {
	return &KafkaHistory{writer: writer}
}

// NewWriter builds the production writer for the history topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

func (h *KafkaHistory) SavePrice(ctx context.Context, u models.PriceUpdate) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode %s: %w", u.Symbol, err)
	}
	if err := h.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(u.Symbol),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("write %s to kafka: %w", u.Symbol, err)
	}
	return nil
}

func (h *KafkaHistory) Close() error {
	return h.writer.Close()
}
