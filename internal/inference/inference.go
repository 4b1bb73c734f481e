// Package inference wraps the pretrained models used by the neural rankers:
// a sentence encoder and a token-classification entity extractor. Handles
// are built once at start-up and are safe for concurrent use.
package inference

import (
	"context"
)

// Encoder maps texts to dense vectors. The i-th vector belongs to texts[i]
// and every vector has the same dimension.
type Encoder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

// EntityExtractor returns the entity spans found in text, already merged
// across sub-word tokens.
type EntityExtractor interface {
	Extract(ctx context.Context, text string) ([]Entity, error)
	Name() string
}

// Entity is one aggregated span.
type Entity struct {
	Group string  `json:"entity_group"`
	Word  string  `json:"word"`
	Score float64 `json:"score"`
	Start int     `json:"start"`
	End   int     `json:"end"`
}
