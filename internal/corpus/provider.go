package corpus

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Provider loads the raw job-posting texts, in a stable order.
type Provider interface {
	Load(ctx context.Context) ([]string, error)
}

const (
	titleColumn  = "job_title"
	skillsColumn = "job_skills"
)

// CSVProvider reads postings from a CSV file with a header row containing
// job_title and job_skills columns.
type CSVProvider struct {
	Path   string
	logger *slog.Logger
}

func NewCSVProvider(path string) *CSVProvider {
	return &CSVProvider{
		Path:   path,
		logger: slog.Default().With("component", "csv-provider"),
	}
}

// Load opens Path and parses it with ReadCSV.
func (p *CSVProvider) Load(ctx context.Context) ([]string, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus csv: %w", err)
	}
	defer f.Close()

	texts, skipped, err := ReadCSV(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p.Path, err)
	}
	p.logger.Info("corpus csv loaded", "path", p.Path, "postings", len(texts), "skipped", skipped)
	return texts, nil
}

// ReadCSV returns "title skills" for every row where both fields are
// non-empty, plus the number of rows dropped.
func ReadCSV(ctx context.Context, r io.Reader) ([]string, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, fmt.Errorf("empty csv: missing header")
		}
		return nil, 0, fmt.Errorf("reading header: %w", err)
	}
	titleIdx, skillsIdx := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case titleColumn:
			titleIdx = i
		case skillsColumn:
			skillsIdx = i
		}
	}
	if titleIdx < 0 || skillsIdx < 0 {
		return nil, 0, fmt.Errorf("header must contain %s and %s columns", titleColumn, skillsColumn)
	}

	var texts []string
	skipped := 0
	for line := 2; ; line++ {
		if line%1000 == 0 && ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", line, err)
		}
		title, skills := field(record, titleIdx), field(record, skillsIdx)
		if title == "" || skills == "" {
			skipped++
			continue
		}
		texts = append(texts, title+" "+skills)
	}
	return texts, skipped, nil
}

func field(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// StaticProvider serves a fixed list of texts.
type StaticProvider []string

func (p StaticProvider) Load(context.Context) ([]string, error) {
	out := make([]string, len(p))
	copy(out, p)
	return out, nil
}
