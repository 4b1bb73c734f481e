package analytics

import "time"

type EventType string

const EventRank EventType = "rank"

// Outcome classifies a ranking call the same way the rank_requests_total
// metric does.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeInvalid Outcome = "invalid"
	OutcomeError   Outcome = "error"
)

// RankEvent describes one ranking call.
type RankEvent struct {
	Type          EventType `json:"type"`
	Strategy      string    `json:"strategy"`
	Outcome       Outcome   `json:"outcome"`
	Matches       int       `json:"matches"`
	CorpusSize    int       `json:"corpus_size"`
	CorpusVersion string    `json:"corpus_version,omitempty"`
	RankSeconds   float64   `json:"rank_seconds"`
	LatencyMs     int64     `json:"latency_ms"`
	ResumeChars   int       `json:"resume_chars"`
	Timestamp     time.Time `json:"timestamp"`
	RequestID     string    `json:"request_id,omitempty"`
}

// Tracker accepts rank events. Implementations must not block the caller.
type Tracker interface {
	Track(event RankEvent)
}
