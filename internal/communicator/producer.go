package communicator

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bilal/g55-agent/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// KafkaProducer mirrors each published cycle to a Kafka topic.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer initializes the Kafka writer
func NewKafkaProducer(cfg config.KafkaConfig) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: int(kafka.RequireOne),
	})

	log.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("kafka producer initialized")

	return &KafkaProducer{writer: writer}, nil
}

// PublishTelemetry writes one cycle record keyed by its cycle id.
func (p *KafkaProducer) PublishTelemetry(ctx context.Context, t Telemetry) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(t.CycleID),
		Value: data,
	})
}

// Close shuts down the Kafka writer gracefully
func (p *KafkaProducer) Close() error {
	log.Info().Msg("closing kafka producer")
	return p.writer.Close()
}
