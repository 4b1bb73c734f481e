package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/config"
	"github.com/segmentio/kafka-go"
)

// Producer writes events to one topic, stamping each with its source.
type Producer struct {
	writer *kafka.Writer
	source string
	logger *slog.Logger
}

// NewProducer creates a Producer for topic. Writes wait for all in-sync
// replicas.
func NewProducer(cfg config.KafkaConfig, topic, source string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			MaxAttempts:  3,
			RequiredAcks: kafka.RequireAll,
		},
		source: source,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish writes events in a single call. Nothing is written if any event
// fails to encode.
func (p *Producer) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	for i, ev := range events {
		m, err := encode(ev, p.source)
		if err != nil {
			return err
		}
		msgs[i] = m
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("publish failed", "count", len(msgs), "error", err)
		return fmt.Errorf("publishing %d events to %s: %w", len(msgs), p.writer.Topic, err)
	}
	p.logger.Debug("published", "count", len(msgs))
	return nil
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	return p.writer.Close()
}
