package ingest

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"listing-radar/internal/config"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConsumer feeds observations from a Kafka topic into a Sink.
type KafkaConsumer struct {
	reader MessageReader
	sink   Sink
	logger zerolog.Logger
}

// NewKafkaConsumer builds a consumer-group reader for cfg.
func NewKafkaConsumer(cfg config.KafkaConfig, sink Sink, logger zerolog.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	return NewKafkaConsumerWithReader(reader, sink, logger.With().Str("topic", cfg.Topic).Logger())
}

// NewKafkaConsumerWithReader wraps an existing reader.
func NewKafkaConsumerWithReader(reader MessageReader, sink Sink, logger zerolog.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader: reader,
		sink:   sink,
		logger: logger.With().Str("component", "kafka_ingest").Logger(),
	}
}

// Run reads until ctx is cancelled. Undecodable messages are skipped.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("close kafka reader")
		}
	}()

	c.logger.Info().Msg("kafka ingest started")
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Warn().Err(err).Msg("kafka read error")
			if !backoff(ctx, 500*time.Millisecond) {
				return ctx.Err()
			}
			continue
		}

		obs, err := Decode(m.Value)
		if err != nil {
			c.logger.Warn().Err(err).Int("partition", m.Partition).Int64("offset", m.Offset).Msg("skipping malformed message")
			continue
		}
		if err := c.sink.Enqueue(ctx, obs); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn().Err(err).Str("listing_id", obs.ID).Msg("observation not accepted")
		}
	}
}

func backoff(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
