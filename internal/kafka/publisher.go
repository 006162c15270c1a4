package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/world-gallery/internal/config"
	"github.com/world-gallery/internal/domain"
	"github.com/world-gallery/internal/metrics"
)

// Publisher writes like events to Kafka, keyed by world so a world's events stay ordered
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewProducerConfig returns the producer settings shared by the server and the CLI
func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_0_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	return cfg
}

// NewPublisher connects a synchronous producer to the configured brokers
func NewPublisher(cfg *config.KafkaConfig, m *metrics.Metrics, logger *slog.Logger) (*Publisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("creating producer: %w", err)
	}
	return NewPublisherWithProducer(producer, cfg.Topic, m, logger), nil
}

// NewPublisherWithProducer wraps an existing producer
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string, m *metrics.Metrics, logger *slog.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
		metrics:  m,
		logger:   logger,
	}
}

// EncodeLikeEvent builds the Kafka message for an event
func EncodeLikeEvent(topic string, event domain.LikeEvent) (*sarama.ProducerMessage, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshaling like event: %w", err)
	}
	return &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.WorldID),
		Value: sarama.ByteEncoder(data),
	}, nil
}

// PublishLikeEvent sends one like event and waits for the broker to accept it
func (p *Publisher) PublishLikeEvent(ctx context.Context, event domain.LikeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := EncodeLikeEvent(p.topic, event)
	if err != nil {
		return err
	}

	partition, offset, err := p.producer.SendMessage(msg)
	p.metrics.KafkaMessage("produce", err)
	if err != nil {
		return fmt.Errorf("publishing like event: %w", err)
	}

	p.logger.Debug("published like event",
		"world_id", event.WorldID,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

// Close flushes and closes the producer
func (p *Publisher) Close() error {
	return p.producer.Close()
}
