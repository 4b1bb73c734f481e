package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Cache holds the current prepared corpus. Cold loads are shared between
// concurrent callers, and a new version replaces the old one atomically;
// requests that already hold a *Corpus keep using it.
type Cache struct {
	provider   Provider
	sampleSize int
	seed       int64
	metrics    *metrics.Metrics
	logger     *slog.Logger

	current atomic.Pointer[Corpus]
	group   singleflight.Group

	mu         sync.Mutex
	generation uint64
}

// NewCache builds a cache over provider. m may be nil.
func NewCache(provider Provider, sampleSize int, seed int64, m *metrics.Metrics) *Cache {
	return &Cache{
		provider:   provider,
		sampleSize: sampleSize,
		seed:       seed,
		metrics:    m,
		logger:     slog.Default().With("component", "corpus-cache"),
	}
}

// Get returns the current corpus, loading it if none is held.
func (c *Cache) Get(ctx context.Context) (*Corpus, error) {
	if cur := c.current.Load(); cur != nil {
		c.record("hit")
		return cur, nil
	}
	c.record("miss")
	return c.load(ctx, false)
}

// Current returns the held corpus without loading, or nil.
func (c *Cache) Current() *Corpus {
	return c.current.Load()
}

// Refresh reloads from the provider and swaps the result in even when a
// corpus is already held.
func (c *Cache) Refresh(ctx context.Context) (*Corpus, error) {
	c.mu.Lock()
	c.generation++
	c.mu.Unlock()
	return c.load(ctx, true)
}

// Invalidate drops the held corpus; the next Get reloads.
func (c *Cache) Invalidate(reason string) {
	c.mu.Lock()
	c.generation++
	prev := c.current.Swap(nil)
	c.mu.Unlock()

	attrs := []any{"reason", reason}
	if prev != nil {
		attrs = append(attrs, "version", prev.Version)
	}
	c.logger.Info("corpus invalidated", attrs...)
}

func (c *Cache) load(ctx context.Context, force bool) (*Corpus, error) {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	// The shared load must not die with whichever request happened to
	// start it.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(fmt.Sprintf("load-%d-%t", gen, force), func() (any, error) {
		if cur := c.current.Load(); cur != nil && !force && c.sameGeneration(gen) {
			return cur, nil
		}
		start := time.Now()
		texts, err := c.provider.Load(loadCtx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrCorpusUnavailable, err)
		}
		total := len(texts)
		texts = Sample(texts, c.sampleSize, c.seed)
		corp := New(texts, "")

		c.mu.Lock()
		if c.generation == gen {
			c.current.Store(corp)
		}
		c.mu.Unlock()

		if c.metrics != nil {
			c.metrics.CorpusDocuments.Set(float64(corp.Len()))
		}
		c.logger.Info("corpus loaded",
			"version", corp.Version,
			"documents", corp.Len(),
			"available", total,
			"duration", time.Since(start),
		)
		return corp, nil
	})
	if err != nil {
		c.logger.Error("corpus load failed", "error", err)
		return nil, err
	}
	return v.(*Corpus), nil
}

func (c *Cache) sameGeneration(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

func (c *Cache) record(result string) {
	if c.metrics != nil {
		c.metrics.CorpusCacheTotal.WithLabelValues(result).Inc()
	}
}
