// Package matching orchestrates one ranking request: it resolves the
// strategy, fetches the prepared corpus, runs exactly one ranker, normalizes
// the scores and attaches previews. It also exposes the request over HTTP
// and RPC.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/text"
	apperrors "github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/tracing"
)

const defaultPreviewChars = 150

// CorpusSource yields the current prepared corpus.
type CorpusSource interface {
	Get(ctx context.Context) (*corpus.Corpus, error)
}

// Options tunes a Service. Zero values pick the defaults; Metrics and
// Tracker may be nil.
type Options struct {
	TopK         int
	PreviewChars int
	Timeout      time.Duration
	Metrics      *metrics.Metrics
	Tracker      analytics.Tracker
}

// Result is one ranked response. Seconds covers only the ranking call.
type Result struct {
	Strategy      ranking.Strategy          `json:"strategy"`
	Matches       []ranking.NormalizedMatch `json:"matches"`
	Seconds       float64                   `json:"time"`
	CorpusVersion string                    `json:"corpus_version"`
	CorpusSize    int                       `json:"corpus_size"`
}

type Service struct {
	registry *ranking.Registry
	corpus   CorpusSource
	opts     Options
	logger   *slog.Logger
}

func NewService(registry *ranking.Registry, source CorpusSource, opts Options) *Service {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.PreviewChars <= 0 {
		opts.PreviewChars = defaultPreviewChars
	}
	return &Service{
		registry: registry,
		corpus:   source,
		opts:     opts,
		logger:   slog.Default().With("component", "matching-service"),
	}
}

// TopK is the number of matches requested from every ranker.
func (s *Service) TopK() int { return s.opts.TopK }

// Strategies lists the registered strategies.
func (s *Service) Strategies() []ranking.Strategy { return s.registry.Available() }

// Match ranks the prepared corpus against resume with the named strategy
// or alias. The result holds min(TopK, corpus size) matches; any failure
// fails the whole request.
func (s *Service) Match(ctx context.Context, strategy, resume string) (*Result, error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "match")
	defer span.End()

	ev := analytics.RankEvent{
		Type:        analytics.EventRank,
		Strategy:    strings.ToLower(strings.TrimSpace(strategy)),
		ResumeChars: len([]rune(resume)),
		RequestID:   logger.RequestID(ctx),
	}
	res, err := s.match(ctx, strategy, resume, &ev)

	ev.LatencyMs = time.Since(start).Milliseconds()
	ev.Timestamp = time.Now().UTC()
	ev.Outcome = outcomeOf(err)
	span.Set("strategy", ev.Strategy)
	span.Set("outcome", string(ev.Outcome))
	s.record(ctx, ev, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) match(ctx context.Context, name, resume string, ev *analytics.RankEvent) (*Result, error) {
	st, err := ranking.ParseStrategy(name)
	if err != nil {
		return nil, err
	}
	ev.Strategy = string(st)
	ctx = logger.With(ctx, "strategy", st)
	if strings.TrimSpace(resume) == "" {
		return nil, apperrors.Invalid("resume_text is required")
	}
	ranker, err := s.registry.Get(st)
	if err != nil {
		return nil, err
	}

	cctx, cspan := tracing.Start(ctx, "corpus")
	docs, err := s.corpus.Get(cctx)
	cspan.End()
	if err != nil {
		return nil, err
	}
	ev.CorpusSize = docs.Len()
	ev.CorpusVersion = docs.Version
	if docs.Len() == 0 {
		return nil, apperrors.Invalid("job corpus is empty")
	}

	rctx, rspan := tracing.Start(ctx, "rank")
	rspan.Set("documents", docs.Len())
	rankStart := time.Now()
	raw, err := resilience.Within(rctx, s.opts.Timeout, func(ctx context.Context) ([]ranking.RawMatch, error) {
		return ranker.Rank(ctx, resume, docs, s.opts.TopK)
	})
	elapsed := time.Since(rankStart).Seconds()
	rspan.End()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s ranking exceeded %v", apperrors.ErrTimeout, st, s.opts.Timeout)
		}
		return nil, fmt.Errorf("%s ranking: %w", st, err)
	}
	ev.RankSeconds = elapsed

	_, nspan := tracing.Start(ctx, "normalize")
	matches := ranking.Normalize(raw)
	for i := range matches {
		matches[i].Preview = text.Truncate(docs.Texts[matches[i].Index], s.opts.PreviewChars)
	}
	nspan.End()
	ev.Matches = len(matches)

	return &Result{
		Strategy:      st,
		Matches:       matches,
		Seconds:       elapsed,
		CorpusVersion: docs.Version,
		CorpusSize:    docs.Len(),
	}, nil
}

func outcomeOf(err error) analytics.Outcome {
	switch {
	case err == nil:
		return analytics.OutcomeOK
	case errors.Is(err, apperrors.ErrInvalidInput):
		return analytics.OutcomeInvalid
	default:
		return analytics.OutcomeError
	}
}

func (s *Service) record(ctx context.Context, ev analytics.RankEvent, err error) {
	log := logger.FromContext(ctx)
	// Unparsed names stay out of label and map keys.
	if _, perr := ranking.ParseStrategy(ev.Strategy); perr != nil {
		ev.Strategy = "unknown"
	}
	label := ev.Strategy

	if m := s.opts.Metrics; m != nil {
		m.RankRequestsTotal.WithLabelValues(label, string(ev.Outcome)).Inc()
		if err == nil {
			m.RankLatency.WithLabelValues(label).Observe(ev.RankSeconds)
			m.RankResultsCount.WithLabelValues(label).Observe(float64(ev.Matches))
		}
	}
	if s.opts.Tracker != nil {
		s.opts.Tracker.Track(ev)
	}

	switch ev.Outcome {
	case analytics.OutcomeOK:
		log.Info("ranking completed",
			"strategy", ev.Strategy,
			"matches", ev.Matches,
			"corpus_version", ev.CorpusVersion,
			"rank_seconds", ev.RankSeconds,
			"latency_ms", ev.LatencyMs,
		)
	case analytics.OutcomeInvalid:
		log.Warn("ranking rejected", "strategy", ev.Strategy, "error", err)
	default:
		log.Error("ranking failed", "strategy", ev.Strategy, "error", err)
	}
}
