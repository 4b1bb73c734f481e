package inference

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// KV is the byte store behind the model-output caches; *redis.Client
// satisfies it. GetMany returns nil for missing keys.
type KV interface {
	GetMany(ctx context.Context, keys []string) ([][]byte, error)
	SetMany(ctx context.Context, entries map[string][]byte, ttl time.Duration) error
}

func cacheKey(prefix, model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return prefix + model + ":" + hex.EncodeToString(sum[:16])
}

// shared runs fn once for all concurrent callers of key. The call runs on a
// context detached from the leader's cancellation; each caller returns as
// soon as its own ctx is done.
func shared[T any](ctx context.Context, g *singleflight.Group, key string, fn func(context.Context) (T, error)) (T, error) {
	fctx := context.WithoutCancel(ctx)
	ch := g.DoChan(key, func() (any, error) { return fn(fctx) })
	select {
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// CachedEncoder serves vectors from KV and only sends misses to the wrapped
// encoder. Identical concurrent miss sets share one call. Cache errors
// degrade to misses.
type CachedEncoder struct {
	next   Encoder
	kv     KV
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

func NewCachedEncoder(next Encoder, kv KV, ttl time.Duration) *CachedEncoder {
	return &CachedEncoder{
		next:   next,
		kv:     kv,
		ttl:    ttl,
		logger: slog.Default().With("component", "embedding-cache", "model", next.Name()),
	}
}

func (c *CachedEncoder) Name() string { return c.next.Name() }

func (c *CachedEncoder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = cacheKey("emb:", c.next.Name(), t)
	}

	var missIdx []int
	hits := c.lookup(ctx, keys)
	for i := range texts {
		if hits[i] != nil {
			out[i] = hits[i]
			continue
		}
		missIdx = append(missIdx, i)
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	missTexts := make([]string, len(missIdx))
	missKeys := make([]string, len(missIdx))
	for j, i := range missIdx {
		missTexts[j] = texts[i]
		missKeys[j] = keys[i]
	}
	flightKey := cacheKey("batch:", c.next.Name(), strings.Join(missKeys, ","))
	vecs, err := shared(ctx, &c.group, flightKey, func(fctx context.Context) ([][]float32, error) {
		vecs, err := c.next.Embed(fctx, missTexts)
		if err != nil {
			return nil, err
		}
		c.store(fctx, missKeys, vecs)
		return vecs, nil
	})
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
	}
	return out, nil
}

// lookup returns a vector or nil per key.
func (c *CachedEncoder) lookup(ctx context.Context, keys []string) [][]float32 {
	out := make([][]float32, len(keys))
	raw, err := c.kv.GetMany(ctx, keys)
	if err != nil {
		c.logger.WarnContext(ctx, "embedding cache read failed", "keys", len(keys), "error", err)
		return out
	}
	for i, data := range raw {
		if data == nil {
			continue
		}
		var vec []float32
		if err := json.Unmarshal(data, &vec); err != nil {
			c.logger.WarnContext(ctx, "embedding cache entry corrupt", "key", keys[i], "error", err)
			continue
		}
		out[i] = vec
	}
	return out
}

func (c *CachedEncoder) store(ctx context.Context, keys []string, vecs [][]float32) {
	entries := make(map[string][]byte, len(keys))
	for j, vec := range vecs {
		if data, err := json.Marshal(vec); err == nil {
			entries[keys[j]] = data
		}
	}
	if err := c.kv.SetMany(ctx, entries, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "embedding cache write failed", "keys", len(entries), "error", err)
	}
}

// CachedExtractor caches entity spans per text.
type CachedExtractor struct {
	next   EntityExtractor
	kv     KV
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

func NewCachedExtractor(next EntityExtractor, kv KV, ttl time.Duration) *CachedExtractor {
	return &CachedExtractor{
		next:   next,
		kv:     kv,
		ttl:    ttl,
		logger: slog.Default().With("component", "entity-cache", "model", next.Name()),
	}
}

func (c *CachedExtractor) Name() string { return c.next.Name() }

func (c *CachedExtractor) Extract(ctx context.Context, text string) ([]Entity, error) {
	key := cacheKey("ner:", c.next.Name(), text)
	if raw, err := c.kv.GetMany(ctx, []string{key}); err != nil {
		c.logger.WarnContext(ctx, "entity cache read failed", "key", key, "error", err)
	} else if len(raw) == 1 && raw[0] != nil {
		var ents []Entity
		if err := json.Unmarshal(raw[0], &ents); err == nil {
			return ents, nil
		}
	}

	return shared(ctx, &c.group, key, func(fctx context.Context) ([]Entity, error) {
		ents, err := c.next.Extract(fctx, text)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(ents); err == nil {
			if err := c.kv.SetMany(fctx, map[string][]byte{key: data}, c.ttl); err != nil {
				c.logger.WarnContext(fctx, "entity cache write failed", "key", key, "error", err)
			}
		}
		return ents, nil
	})
}
