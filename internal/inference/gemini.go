package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	defaultGeminiModel = "text-embedding-004"
	geminiBatchSize    = 100
)

// GeminiEncoder embeds texts through the Gemini API.
type GeminiEncoder struct {
	client *genai.Client
	model  string
}

func NewGeminiEncoder(ctx context.Context, apiKey, model string) (*GeminiEncoder, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultGeminiModel
	}
	return &GeminiEncoder{client: client, model: model}, nil
}

func (e *GeminiEncoder) Name() string { return e.model }

func (e *GeminiEncoder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiBatchSize {
		end := min(start+geminiBatchSize, len(texts))
		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.Text(t)...)
		}
		resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
			TaskType: "SEMANTIC_SIMILARITY",
		})
		if err != nil {
			return nil, fmt.Errorf("gemini embed: %w", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini returned %d vectors for %d inputs", len(resp.Embeddings), end-start)
		}
		for _, emb := range resp.Embeddings {
			out = append(out, emb.Values)
		}
	}
	return out, nil
}
