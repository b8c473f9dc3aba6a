package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/firesight-in/firesight/internal/domain/detection"
)

// KafkaPublisher emits one message per accepted detection so downstream
// consumers (alerting, archival) see new fires without polling the API.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaPublisher constructs a publisher writing to the given topic.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 100 * time.Millisecond,
	}
	return &KafkaPublisher{
		writer: writer,
		logger: logger.With("component", "events.kafka"),
	}
}

// Publish writes the batch. Messages are keyed by detection ID so a fire's
// events land in one partition.
func (p *KafkaPublisher) Publish(ctx context.Context, dets []detection.FireDetection) error {
	if len(dets) == 0 {
		return nil
	}
	messages := make([]kafka.Message, 0, len(dets))
	for _, det := range dets {
		payload, err := json.Marshal(det)
		if err != nil {
			return fmt.Errorf("encode detection event: %w", err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(strconv.FormatInt(det.ID, 10)),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "source", Value: []byte(det.Source)},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("write detection events: %w", err)
	}
	p.logger.Debug("detection events published", "count", len(messages))
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ detection.EventPublisher = (*KafkaPublisher)(nil)
