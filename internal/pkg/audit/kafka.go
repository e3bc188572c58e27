package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrKafkaBrokersRequired is returned when no Kafka brokers are configured.
var ErrKafkaBrokersRequired = errors.New("audit: kafka brokers are required")

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Brokers []string
}

// Kafka writes events to the topic carried by each message. Messages are
// keyed by source address so one address stays on one partition.
type Kafka struct {
	writer *kafka.Writer
}

// NewKafka returns a Kafka sink. Brokers are dialled lazily on first write.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrKafkaBrokersRequired
	}

	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		},
	}, nil
}

func (k *Kafka) Send(ctx context.Context, topic string, key, body []byte) error {
	err := k.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: body,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("audit: kafka publish: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
