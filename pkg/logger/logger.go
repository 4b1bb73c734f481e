// Package logger configures the process-wide slog logger. Records logged
// with a context automatically carry the request id and any attributes
// attached to that context with With.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	attrsKey
)

// Setup installs the default logger writing to stdout.
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a logger for format "json" or "text" (anything else).
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(contextHandler{h})
}

// ParseLevel maps debug/warn/error to their slog levels; everything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// contextHandler copies request-scoped attributes from the record's context.
type contextHandler struct{ slog.Handler }

func (h contextHandler) Handle(ctx context.Context, rec slog.Record) error {
	if ctx != nil {
		if id := RequestID(ctx); id != "" {
			rec.AddAttrs(slog.String("request_id", id))
		}
		if attrs, ok := ctx.Value(attrsKey).([]slog.Attr); ok {
			rec.AddAttrs(attrs...)
		}
	}
	return h.Handler.Handle(ctx, rec)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// With returns a context whose log records include args as attributes.
func With(ctx context.Context, args ...any) context.Context {
	prev, _ := ctx.Value(attrsKey).([]slog.Attr)
	rec := slog.Record{}
	rec.Add(args...)
	attrs := make([]slog.Attr, 0, len(prev)+rec.NumAttrs())
	attrs = append(attrs, prev...)
	rec.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	return context.WithValue(ctx, attrsKey, attrs)
}

// FromContext returns the default logger bound to ctx, for call sites
// that do not use the *Context logging methods.
func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := RequestID(ctx); id != "" {
		l = l.With("request_id", id)
	}
	if attrs, ok := ctx.Value(attrsKey).([]slog.Attr); ok {
		for _, a := range attrs {
			l = l.With(a)
		}
	}
	return l
}
