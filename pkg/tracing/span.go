// Package tracing times the stages of a ranking call (corpus fetch, rank,
// normalize) and, when enabled, logs each finished trace as one structured
// slog record with the stage tree nested under it.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/logger"
	"github.com/google/uuid"
)

var enabled atomic.Bool

// SetEnabled turns trace logging on or off process-wide. Spans are timed
// either way.
func SetEnabled(on bool) { enabled.Store(on) }

type spanKey struct{}

// Span is one timed stage. Spans started from a context that already holds
// a span become its children and share its trace id.
type Span struct {
	name    string
	traceID string
	parent  *Span
	start   time.Time

	mu       sync.Mutex
	end      time.Time
	attrs    []slog.Attr
	children []*Span
}

// Start opens a span under the span in ctx, or a new trace when there is
// none. A new trace reuses the request id from ctx or mints a UUID.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	s := &Span{name: name, start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		s.parent = parent
		s.traceID = parent.traceID
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	} else if id := logger.RequestID(ctx); id != "" {
		s.traceID = id
	} else {
		s.traceID = uuid.NewString()
	}
	return context.WithValue(ctx, spanKey{}, s), s
}

// FromContext returns the innermost span in ctx, or nil.
func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

func (s *Span) TraceID() string { return s.traceID }
func (s *Span) Name() string    { return s.name }

// Set attaches an attribute; a repeated key overwrites.
func (s *Span) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.attrs {
		if s.attrs[i].Key == key {
			s.attrs[i].Value = slog.AnyValue(value)
			return
		}
	}
	s.attrs = append(s.attrs, slog.Any(key, value))
}

// Attr returns the value stored under key.
func (s *Span) Attr(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attrs {
		if a.Key == key {
			return a.Value.Any(), true
		}
	}
	return nil, false
}

// Children returns the spans started under s, in start order.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// End stops the clock. Ending a root span logs the trace when enabled.
// Only the first call counts.
func (s *Span) End() {
	s.mu.Lock()
	if !s.end.IsZero() {
		s.mu.Unlock()
		return
	}
	s.end = time.Now()
	s.mu.Unlock()

	if s.parent == nil && enabled.Load() {
		slog.Debug("trace", "trace_id", s.traceID, "root", s)
	}
}

// Duration is the elapsed time so far for an open span.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.end.IsZero() {
		return time.Since(s.start)
	}
	return s.end.Sub(s.start)
}

// LogValue renders the span and its children as nested groups keyed by
// child name.
func (s *Span) LogValue() slog.Value {
	d := s.Duration()
	s.mu.Lock()
	attrs := make([]slog.Attr, 0, len(s.attrs)+2+len(s.children))
	attrs = append(attrs, slog.String("name", s.name), slog.Float64("ms", float64(d.Microseconds())/1000))
	attrs = append(attrs, s.attrs...)
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	for _, c := range children {
		attrs = append(attrs, slog.Any(c.name, c))
	}
	return slog.GroupValue(attrs...)
}
