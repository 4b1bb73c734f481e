package inference

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/resilience"
)

// Models holds the process-lifetime model handles.
type Models struct {
	Encoder       Encoder
	Extractor     EntityExtractor
	AllowedGroups []string

	breakers []*resilience.Breaker
}

// NewModels builds the configured encoder and extractor, each behind a
// circuit breaker and, when kv is non-nil and caching is enabled, a shared
// cache. A backend that cannot be constructed is replaced by a handle that
// fails every call with ErrModelUnavailable, so the lexical strategies keep
// working.
func NewModels(ctx context.Context, cfg config.ModelsConfig, m *metrics.Metrics, kv KV) *Models {
	log := slog.Default().With("component", "models")

	var enc Encoder
	base, err := newEncoder(ctx, cfg.Embedding)
	if err != nil {
		log.Error("embedding model unavailable", "provider", cfg.Embedding.Provider, "error", err)
		enc = unavailable{name: cfg.Embedding.Model, err: err}
	} else {
		enc = base
	}

	var ext EntityExtractor = NewHFTokenClassifier(cfg.Entities.Endpoint, cfg.Entities.Model, cfg.Entities.APIKey, cfg.Entities.Timeout)
	if cfg.Entities.Endpoint == "" {
		ext = unavailable{name: cfg.Entities.Model, err: fmt.Errorf("no entity endpoint configured")}
	}

	if kv != nil && cfg.Cache.Enabled {
		enc = NewCachedEncoder(enc, kv, cfg.Cache.TTL)
		ext = NewCachedExtractor(ext, kv, cfg.Cache.TTL)
	}

	encBreaker := NewBreaker("embedding", m)
	extBreaker := NewBreaker("entities", m)
	log.Info("models ready",
		"embedding_provider", cfg.Embedding.Provider,
		"embedding_model", enc.Name(),
		"entity_model", ext.Name(),
		"cache", kv != nil && cfg.Cache.Enabled,
	)
	return &Models{
		Encoder:       NewGuardedEncoder(enc, encBreaker, m),
		Extractor:     NewGuardedExtractor(ext, extBreaker, m),
		AllowedGroups: cfg.Entities.AllowedGroups,
		breakers:      []*resilience.Breaker{encBreaker, extBreaker},
	}
}

func newEncoder(ctx context.Context, cfg config.EmbeddingConfig) (Encoder, error) {
	switch cfg.Provider {
	case "tei", "":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("no embedding endpoint configured")
		}
		return NewTEIEncoder(cfg.Endpoint, cfg.Model, cfg.APIKey, cfg.Timeout), nil
	case "ollama":
		return NewOllamaEncoder(cfg.Endpoint, cfg.Model, cfg.Timeout), nil
	case "gemini":
		return NewGeminiEncoder(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// Check reports the first open breaker, for readiness probes.
func (m *Models) Check(context.Context) error {
	for _, st := range m.Breakers() {
		if st.State == resilience.StateOpen {
			return fmt.Errorf("%s circuit open, retry in %v", st.Name, st.RetryIn.Round(time.Second))
		}
	}
	return nil
}

// Breakers snapshots the model circuit breakers.
func (m *Models) Breakers() []resilience.BreakerStatus {
	out := make([]resilience.BreakerStatus, len(m.breakers))
	for i, b := range m.breakers {
		out[i] = b.Status()
	}
	return out
}

// unavailable stands in for a model that failed to construct.
type unavailable struct {
	name string
	err  error
}

func (u unavailable) Name() string { return u.name }

func (u unavailable) Embed(context.Context, []string) ([][]float32, error) {
	return nil, apperrors.ModelUnavailable(u.name, u.err)
}

func (u unavailable) Extract(context.Context, string) ([]Entity, error) {
	return nil, apperrors.ModelUnavailable(u.name, u.err)
}
