package inference

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/resilience"
)

// NewBreaker returns a circuit breaker that reports its state to m (which
// may be nil). Caller cancellations do not count as model failures.
func NewBreaker(name string, m *metrics.Metrics) *resilience.Breaker {
	opts := resilience.BreakerOptions{
		Threshold: 5,
		Cooldown:  30 * time.Second,
		IsFailure: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
	}
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(resilience.StateClosed))
		opts.OnChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return resilience.NewBreaker(name, opts)
}

// GuardedEncoder fails fast while its breaker is open and reports every
// other failure as ErrModelUnavailable. There is no retry.
type GuardedEncoder struct {
	next    Encoder
	breaker *resilience.Breaker
	metrics *metrics.Metrics
}

func NewGuardedEncoder(next Encoder, breaker *resilience.Breaker, m *metrics.Metrics) *GuardedEncoder {
	return &GuardedEncoder{next: next, breaker: breaker, metrics: m}
}

func (g *GuardedEncoder) Name() string { return g.next.Name() }

// Breaker exposes the breaker for readiness checks.
func (g *GuardedEncoder) Breaker() *resilience.Breaker { return g.breaker }

func (g *GuardedEncoder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	start := time.Now()
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.next.Embed(ctx, texts)
		return err
	})
	observe(g.metrics, g.next.Name(), start, err)
	if err != nil {
		return nil, classify(ctx, g.next.Name(), err)
	}
	return out, nil
}

// GuardedExtractor is the EntityExtractor counterpart of GuardedEncoder.
type GuardedExtractor struct {
	next    EntityExtractor
	breaker *resilience.Breaker
	metrics *metrics.Metrics
}

func NewGuardedExtractor(next EntityExtractor, breaker *resilience.Breaker, m *metrics.Metrics) *GuardedExtractor {
	return &GuardedExtractor{next: next, breaker: breaker, metrics: m}
}

func (g *GuardedExtractor) Name() string { return g.next.Name() }

func (g *GuardedExtractor) Breaker() *resilience.Breaker { return g.breaker }

func (g *GuardedExtractor) Extract(ctx context.Context, text string) ([]Entity, error) {
	var out []Entity
	start := time.Now()
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.next.Extract(ctx, text)
		return err
	})
	observe(g.metrics, g.next.Name(), start, err)
	if err != nil {
		return nil, classify(ctx, g.next.Name(), err)
	}
	return out, nil
}

func observe(m *metrics.Metrics, model string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ModelInferenceTime.WithLabelValues(model, status).Observe(time.Since(start).Seconds())
}

// classify leaves the caller's own cancellation or deadline untouched so the
// orchestrator can report it as such.
func classify(ctx context.Context, model string, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	return apperrors.ModelUnavailable(model, err)
}
