package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (p *recordingPublisher) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func startCollector(t *testing.T, pub kafka.Publisher, batchSize int) *BatchCollector {
	t.Helper()
	bc := NewBatchCollector(pub, batchSize, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)
	t.Cleanup(func() {
		cancel()
		bc.Close()
	})
	return bc
}

func TestFlushPublishesKeyedByStrategy(t *testing.T) {
	pub := &recordingPublisher{}
	bc := startCollector(t, pub, 10)

	bc.Track(analytics.RankEvent{Type: analytics.EventRank, Strategy: "bm25"})
	bc.Track(analytics.RankEvent{Type: analytics.EventRank, Strategy: "tfidf"})
	bc.Flush(context.Background())

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	require.Len(t, pub.batches[0], 2)
	assert.Equal(t, "bm25", pub.batches[0][0].Key)
	assert.Equal(t, "tfidf", pub.batches[0][1].Key)
	assert.Equal(t, string(analytics.EventRank), pub.batches[0][0].Type)
	assert.Equal(t, 0, bc.Pending())
}

func TestFullBatchPublishesWithoutFlush(t *testing.T) {
	pub := &recordingPublisher{}
	bc := startCollector(t, pub, 3)
	for i := 0; i < 3; i++ {
		bc.Track(analytics.RankEvent{Strategy: "bm25"})
	}
	assert.Eventually(t, func() bool { return pub.count() == 3 }, time.Second, 5*time.Millisecond)
}

func TestFailedPublishKeepsEvents(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	bc := startCollector(t, pub, 100)
	for i := 0; i < 50; i++ {
		bc.Track(analytics.RankEvent{Strategy: "bm25"})
	}
	bc.Flush(context.Background())
	assert.Equal(t, 50, bc.Pending())

	pub.setErr(nil)
	bc.Flush(context.Background())
	assert.Equal(t, 50, pub.count())
	assert.Equal(t, 0, bc.Pending())
}

func TestRetryBufferIsCapped(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	bc := startCollector(t, pub, 100)
	for i := 0; i < 400; i++ {
		bc.Track(analytics.RankEvent{Strategy: "entity"})
	}
	bc.Flush(context.Background())

	assert.Equal(t, 300, bc.Pending())
	assert.Equal(t, int64(100), bc.Dropped())
}

func TestShutdownPublishesQueued(t *testing.T) {
	pub := &recordingPublisher{}
	bc := NewBatchCollector(pub, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)

	bc.Track(analytics.RankEvent{Strategy: "entity"})
	cancel()
	bc.Close()

	assert.Equal(t, 1, pub.count())
}

func TestFlushAfterCloseReturns(t *testing.T) {
	bc := NewBatchCollector(&recordingPublisher{}, 10, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)
	cancel()
	bc.Close()

	bc.Flush(context.Background())
}
