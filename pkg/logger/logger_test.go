package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func useDefault(t *testing.T, l *slog.Logger) {
	prev := slog.Default()
	slog.SetDefault(l)
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "WARN", "json")

	log.Info("hidden")
	log.Warn("shown", "strategy", "bm25")

	entry := decode(t, &buf)
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "bm25", entry["strategy"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("Error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestContextMethodsCarryRequestAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info", "json")

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = With(ctx, "strategy", "tfidf")
	log.InfoContext(ctx, "ranked", "matches", 3)

	entry := decode(t, &buf)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "tfidf", entry["strategy"])
	assert.EqualValues(t, 3, entry["matches"])
}

func TestWithAccumulates(t *testing.T) {
	ctx := With(context.Background(), "strategy", "bm25")
	child := With(ctx, "corpus_version", "v2")

	var buf bytes.Buffer
	New(&buf, "info", "json").InfoContext(child, "x")
	entry := decode(t, &buf)
	assert.Equal(t, "bm25", entry["strategy"])
	assert.Equal(t, "v2", entry["corpus_version"])

	buf.Reset()
	New(&buf, "info", "json").InfoContext(ctx, "y")
	assert.NotContains(t, decode(t, &buf), "corpus_version")
}

func TestFromContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	useDefault(t, New(&buf, "info", "json"))

	ctx := WithRequestID(context.Background(), "req-1")
	FromContext(ctx).Info("ranked")

	assert.Equal(t, "req-1", decode(t, &buf)["request_id"])
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Empty(t, RequestID(context.Background()))
}
