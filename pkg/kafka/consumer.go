package kafka

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/config"
	"github.com/segmentio/kafka-go"
)

// ConsumerOptions tune a Consumer. An empty Group falls back to the
// configured consumer group. FromStart replays the retained topic when the
// group has no committed offset; otherwise only new messages are read.
type ConsumerOptions struct {
	Group     string
	FromStart bool
}

// ConsumerStats counts handled messages.
type ConsumerStats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Consumer reads one topic and hands each message to a Handler.
type Consumer struct {
	reader  *kafka.Reader
	handler Handler
	logger  *slog.Logger

	processed atomic.Int64
	failed    atomic.Int64
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler Handler, opts ConsumerOptions) *Consumer {
	group := opts.Group
	if group == "" {
		group = cfg.ConsumerGroup
	}
	start := kafka.LastOffset
	if opts.FromStart {
		start = kafka.FirstOffset
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     group,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     time.Second,
			StartOffset: start,
		}),
		handler: handler,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", group),
	}
}

// Start consumes until ctx is cancelled, then closes the reader. Fetch
// errors back off up to 30s. Handler failures are committed so a poison
// message cannot stall its partition.
func (c *Consumer) Start(ctx context.Context) error {
	defer c.reader.Close()
	c.logger.Info("consumer started")

	wait := time.Second
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopped")
				return nil
			}
			c.logger.Error("fetch failed", "error", err, "retry_in", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil
			}
			wait = min(2*wait, 30*time.Second)
			continue
		}
		wait = time.Second

		msg := decode(m)
		if err := c.handler(ctx, msg); err != nil {
			c.failed.Add(1)
			c.logger.Warn("message handling failed",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"type", msg.Type,
				"error", err,
			)
		} else {
			c.processed.Add(1)
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{Processed: c.processed.Load(), Failed: c.failed.Load()}
}
