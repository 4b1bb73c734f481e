// Package collector ships rank events to Kafka in batches.
package collector

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/kafka"
)

// BatchCollector queues rank events and publishes them from a single loop,
// when a batch fills up or every flush interval. Track never blocks: when
// the queue is full the event is dropped and counted.
//
// While the broker is failing, unsent events are kept up to three batches,
// oldest dropped first, and retried on each interval.
type BatchCollector struct {
	publisher     kafka.Publisher
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	queue    chan analytics.RankEvent
	flushReq chan chan struct{}
	done     chan struct{}

	// owned by run
	pending []kafka.Event
	failing bool

	pendingLen atomic.Int64
	dropped    atomic.Int64
}

var _ analytics.Tracker = (*BatchCollector)(nil)

func NewBatchCollector(publisher kafka.Publisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchCollector{
		publisher:     publisher,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "batch-collector"),
		queue:         make(chan analytics.RankEvent, 4*batchSize),
		flushReq:      make(chan chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start launches the publish loop. When ctx ends, the loop drains the
// queue, makes a last flush attempt and exits.
func (bc *BatchCollector) Start(ctx context.Context) {
	go bc.run(ctx)
	bc.logger.Info("batch collector started", "batch_size", bc.batchSize, "flush_interval", bc.flushInterval)
}

func (bc *BatchCollector) Track(event analytics.RankEvent) {
	select {
	case bc.queue <- event:
	default:
		bc.dropped.Add(1)
	}
}

// Flush asks the loop to publish everything queued so far and waits for
// the attempt to finish or ctx to end.
func (bc *BatchCollector) Flush(ctx context.Context) {
	ack := make(chan struct{})
	select {
	case bc.flushReq <- ack:
	case <-bc.done:
		return
	case <-ctx.Done():
		return
	}
	select {
	case <-ack:
	case <-ctx.Done():
	}
}

// Close waits for the loop started by Start to exit.
func (bc *BatchCollector) Close() {
	<-bc.done
}

// Pending reports events accepted but not yet published.
func (bc *BatchCollector) Pending() int { return int(bc.pendingLen.Load()) }

// Dropped reports events lost to a full queue or the retry cap.
func (bc *BatchCollector) Dropped() int64 { return bc.dropped.Load() }

func (bc *BatchCollector) run(ctx context.Context) {
	defer close(bc.done)
	ticker := time.NewTicker(bc.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-bc.queue:
			bc.add(ev)
			if len(bc.pending) >= bc.batchSize && !bc.failing {
				bc.publish(ctx)
			}
		case <-ticker.C:
			bc.publish(ctx)
		case ack := <-bc.flushReq:
			bc.drain()
			bc.publish(ctx)
			close(ack)
		case <-ctx.Done():
			bc.drain()
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			bc.publish(final)
			cancel()
			if n := len(bc.pending); n > 0 {
				bc.logger.Warn("unsent rank events discarded on shutdown", "events", n)
			}
			return
		}
	}
}

func (bc *BatchCollector) add(ev analytics.RankEvent) {
	if limit := 3 * bc.batchSize; len(bc.pending) >= limit {
		bc.pending = bc.pending[1:]
		bc.dropped.Add(1)
	}
	bc.pending = append(bc.pending, kafka.Event{Key: ev.Strategy, Type: string(analytics.EventRank), Value: ev})
	bc.pendingLen.Store(int64(len(bc.pending)))
}

func (bc *BatchCollector) drain() {
	for {
		select {
		case ev := <-bc.queue:
			bc.add(ev)
		default:
			return
		}
	}
}

func (bc *BatchCollector) publish(ctx context.Context) {
	if len(bc.pending) == 0 {
		return
	}
	if err := bc.publisher.Publish(ctx, bc.pending...); err != nil {
		if !bc.failing {
			bc.logger.Error("publishing rank events failed", "events", len(bc.pending), "error", err)
		}
		bc.failing = true
		return
	}
	if bc.failing {
		bc.logger.Info("publishing rank events recovered")
	}
	bc.logger.Debug("rank events published", "events", len(bc.pending))
	bc.failing = false
	bc.pending = make([]kafka.Event, 0, bc.batchSize)
	bc.pendingLen.Store(0)
}
