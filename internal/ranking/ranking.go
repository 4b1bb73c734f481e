// Package ranking scores a corpus of job postings against one resume. Four
// strategies share the Ranker contract; their raw scores are made
// comparable by Normalize.
package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/errors"
)

// Strategy identifies a ranker.
type Strategy string

const (
	StrategyTFIDF     Strategy = "tfidf"
	StrategyBM25      Strategy = "bm25"
	StrategyEmbedding Strategy = "embedding"
	StrategyEntity    Strategy = "entity"
)

// Strategies lists every strategy in display order.
var Strategies = []Strategy{StrategyTFIDF, StrategyBM25, StrategyEmbedding, StrategyEntity}

var aliases = map[string]Strategy{
	"tfidf":     StrategyTFIDF,
	"tf-idf":    StrategyTFIDF,
	"bm25":      StrategyBM25,
	"embedding": StrategyEmbedding,
	"bert":      StrategyEmbedding,
	"entity":    StrategyEntity,
	"ner":       StrategyEntity,
}

// ParseStrategy accepts a strategy id or route alias, case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	if st, ok := aliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st, nil
	}
	return "", fmt.Errorf("%w %q", apperrors.ErrUnknownStrategy, s)
}

// Aliases returns the alternative route names for st.
func (st Strategy) Aliases() []string {
	var out []string
	for name, s := range aliases {
		if s == st && name != string(st) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// RawMatch is one ranker output row. Higher scores are always better.
type RawMatch struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// NormalizedMatch is a match after min-max scaling, with a text preview.
type NormalizedMatch struct {
	Index   int
	Score   float64
	Preview string
}

// MarshalJSON encodes the match as [index, score, preview].
func (m NormalizedMatch) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{m.Index, m.Score, m.Preview})
}

// UnmarshalJSON decodes the [index, score, preview] form.
func (m *NormalizedMatch) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 3 {
		return fmt.Errorf("match: want 3 elements, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &m.Index); err != nil {
		return fmt.Errorf("match index: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &m.Score); err != nil {
		return fmt.Errorf("match score: %w", err)
	}
	if err := json.Unmarshal(tuple[2], &m.Preview); err != nil {
		return fmt.Errorf("match preview: %w", err)
	}
	return nil
}

// Ranker scores every document of docs against resume and returns the
// best min(topK, docs.Len()) by score descending, ties by ascending index.
// docs must be non-empty and topK at least 1.
type Ranker interface {
	Strategy() Strategy
	Rank(ctx context.Context, resume string, docs *corpus.Corpus, topK int) ([]RawMatch, error)
}
