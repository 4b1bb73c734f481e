package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Snapshot is a persisted copy of AggregatedStats.
type Snapshot struct {
	ID         int64           `json:"id"`
	CapturedAt time.Time       `json:"captured_at"`
	Stats      AggregatedStats `json:"stats"`
}

// SnapshotLister reads persisted snapshots, newest first.
type SnapshotLister interface {
	ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error)
}

const (
	defaultSnapshotLimit = 10
	maxSnapshotLimit     = 100
)

// Handler serves the analytics read API.
type Handler struct {
	agg       *Aggregator
	snapshots SnapshotLister
	log       *slog.Logger
}

// NewHandler serves live stats from agg. snapshots is nil when persistence
// is off.
func NewHandler(agg *Aggregator, snapshots SnapshotLister) *Handler {
	return &Handler{agg: agg, snapshots: snapshots, log: slog.Default().With("component", "analytics-api")}
}

// Stats returns the aggregate, or with ?strategy= only that strategy's
// counters.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.agg.Stats()
	name := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("strategy")))
	if name == "" {
		respond(w, http.StatusOK, stats)
		return
	}
	s, ok := stats.ByStrategy[name]
	if !ok {
		fail(w, http.StatusNotFound, "not_found", "no ranking events for strategy "+strconv.Quote(name))
		return
	}
	respond(w, http.StatusOK, map[string]any{"strategy": name, "stats": s, "since": stats.Since})
}

// Snapshots lists persisted snapshots newest first. ?limit= defaults to 10
// and is capped at 100.
func (h *Handler) Snapshots(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		fail(w, http.StatusServiceUnavailable, "persistence_disabled", "analytics persistence is disabled")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	snaps, err := h.snapshots.ListSnapshots(r.Context(), limit)
	if err != nil {
		h.log.ErrorContext(r.Context(), "listing snapshots failed", "limit", limit, "error", err)
		fail(w, http.StatusInternalServerError, "internal", "listing snapshots failed")
		return
	}
	if snaps == nil {
		snaps = []Snapshot{}
	}
	respond(w, http.StatusOK, snaps)
}

var errBadLimit = errors.New("limit must be a positive integer")

func parseLimit(v string) (int, error) {
	if v == "" {
		return defaultSnapshotLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, errBadLimit
	}
	return min(n, maxSnapshotLimit), nil
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("writing analytics response failed", "error", err)
	}
}

func fail(w http.ResponseWriter, status int, code, msg string) {
	respond(w, status, map[string]string{"error": msg, "code": code})
}
