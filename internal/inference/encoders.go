package inference

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const teiBatchSize = 32

// TEIEncoder calls a text-embeddings-inference server's /embed route.
type TEIEncoder struct {
	endpoint string
	model    string
	client   jsonClient
}

func NewTEIEncoder(endpoint, model, apiKey string, timeout time.Duration) *TEIEncoder {
	return &TEIEncoder{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client:   newJSONClient(timeout, apiKey),
	}
}

func (e *TEIEncoder) Name() string { return e.model }

func (e *TEIEncoder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += teiBatchSize {
		end := min(start+teiBatchSize, len(texts))
		var batch [][]float32
		payload := map[string]any{"inputs": texts[start:end], "truncate": true}
		if err := e.client.post(ctx, e.endpoint+"/embed", payload, &batch); err != nil {
			return nil, err
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("tei returned %d vectors for %d inputs", len(batch), end-start)
		}
		out = append(out, batch...)
	}
	return out, nil
}

// OllamaEncoder calls Ollama's /api/embed route.
type OllamaEncoder struct {
	endpoint string
	model    string
	client   jsonClient
}

func NewOllamaEncoder(endpoint, model string, timeout time.Duration) *OllamaEncoder {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	return &OllamaEncoder{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client:   newJSONClient(timeout, ""),
	}
}

func (e *OllamaEncoder) Name() string { return e.model }

func (e *OllamaEncoder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	payload := map[string]any{
		"model": e.model,
		"input": texts,
	}
	var result struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.post(ctx, e.endpoint+"/api/embed", payload, &result); err != nil {
		return nil, err
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d vectors for %d inputs", len(result.Embeddings), len(texts))
	}
	return result.Embeddings, nil
}
