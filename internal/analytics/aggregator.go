package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/kafka"
)

type AggregatedStats struct {
	TotalRequests     int64                    `json:"total_requests"`
	TotalFailures     int64                    `json:"total_failures"`
	ByStrategy        map[string]StrategyStats `json:"by_strategy"`
	TopStrategies     []StrategyCount          `json:"top_strategies"`
	RequestsPerMinute float64                  `json:"requests_per_minute"`
	CorpusVersion     string                   `json:"corpus_version,omitempty"`
	Since             time.Time                `json:"since"`
}

type StrategyStats struct {
	Requests      int64   `json:"requests"`
	Invalid       int64   `json:"invalid"`
	Errors        int64   `json:"errors"`
	EmptyResults  int64   `json:"empty_results"`
	AvgMatches    float64 `json:"avg_matches"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	P50LatencyMs  int64   `json:"p50_latency_ms"`
	P95LatencyMs  int64   `json:"p95_latency_ms"`
	P99LatencyMs  int64   `json:"p99_latency_ms"`
	AvgRankMillis float64 `json:"avg_rank_ms"`
}

type StrategyCount struct {
	Strategy string `json:"strategy"`
	Count    int64  `json:"count"`
}

// strategyWindow keeps counters for one strategy plus the most recent
// latency samples in a ring.
type strategyWindow struct {
	requests   int64
	invalid    int64
	errors     int64
	empty      int64
	matchesSum int64
	rankSum    float64
	ok         int64
	latencies  []int64
	next       int
}

func (w *strategyWindow) addLatency(ms int64, max int) {
	if len(w.latencies) < max {
		w.latencies = append(w.latencies, ms)
		return
	}
	w.latencies[w.next] = ms
	w.next = (w.next + 1) % max
}

// Aggregator folds rank events into per-strategy statistics. It is a
// Tracker itself, for single-process deployments without Kafka.
type Aggregator struct {
	mu            sync.Mutex
	strategies    map[string]*strategyWindow
	maxSamples    int
	corpusVersion string
	startTime     time.Time
	logger        *slog.Logger
}

// NewAggregator keeps at most maxSamples latency samples per strategy.
func NewAggregator(maxSamples int) *Aggregator {
	if maxSamples <= 0 {
		maxSamples = 10000
	}
	return &Aggregator{
		strategies: make(map[string]*strategyWindow),
		maxSamples: maxSamples,
		startTime:  time.Now(),
		logger:     slog.Default().With("component", "analytics-aggregator"),
	}
}

// Run consumes rank events from consumer until ctx is done.
func (a *Aggregator) Run(ctx context.Context, consumer *kafka.Consumer) error {
	a.logger.Info("analytics aggregator consuming rank events")
	return consumer.Start(ctx)
}

// HandleEvent decodes rank events for the aggregator. Other event types
// and undecodable messages are skipped.
func HandleEvent(agg *Aggregator) kafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		if msg.Type != "" && msg.Type != string(EventRank) {
			return nil
		}
		event, err := kafka.Decode[RankEvent](msg)
		if err != nil || event.Type != EventRank {
			agg.logger.Warn("skipping analytics message", "key", msg.Key, "offset", msg.Offset, "error", err)
			return nil
		}
		agg.Track(event)
		return nil
	}
}

func (a *Aggregator) Track(event RankEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	w, ok := a.strategies[event.Strategy]
	if !ok {
		w = &strategyWindow{}
		a.strategies[event.Strategy] = w
	}
	w.requests++
	switch event.Outcome {
	case OutcomeInvalid:
		w.invalid++
	case OutcomeError:
		w.errors++
	default:
		w.ok++
		w.matchesSum += int64(event.Matches)
		w.rankSum += event.RankSeconds
		if event.Matches == 0 {
			w.empty++
		}
		if event.CorpusVersion != "" {
			a.corpusVersion = event.CorpusVersion
		}
	}
	w.addLatency(event.LatencyMs, a.maxSamples)
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AggregatedStats{
		ByStrategy:    make(map[string]StrategyStats, len(a.strategies)),
		CorpusVersion: a.corpusVersion,
		Since:         a.startTime.UTC(),
	}
	counts := make(map[string]int64, len(a.strategies))
	for name, w := range a.strategies {
		s := StrategyStats{
			Requests:     w.requests,
			Invalid:      w.invalid,
			Errors:       w.errors,
			EmptyResults: w.empty,
		}
		if w.ok > 0 {
			s.AvgMatches = float64(w.matchesSum) / float64(w.ok)
			s.AvgRankMillis = w.rankSum * 1000 / float64(w.ok)
		}
		if len(w.latencies) > 0 {
			sorted := make([]int64, len(w.latencies))
			copy(sorted, w.latencies)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

			var sum int64
			for _, l := range sorted {
				sum += l
			}
			s.AvgLatencyMs = float64(sum) / float64(len(sorted))
			s.P50LatencyMs = percentile(sorted, 50)
			s.P95LatencyMs = percentile(sorted, 95)
			s.P99LatencyMs = percentile(sorted, 99)
		}
		stats.ByStrategy[name] = s
		stats.TotalRequests += w.requests
		stats.TotalFailures += w.invalid + w.errors
		counts[name] = w.requests
	}
	stats.TopStrategies = topN(counts, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.RequestsPerMinute = float64(stats.TotalRequests) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []StrategyCount {
	result := make([]StrategyCount, 0, len(counts))
	for name, count := range counts {
		result = append(result, StrategyCount{Strategy: name, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Strategy < result[j].Strategy
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
