package ranking

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/inference"
	apperrors "github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/errors"
)

// Embedding ranks by cosine similarity between the resume vector and each
// posting vector from one shared encoder. Posting vectors are computed once
// per corpus version.
type Embedding struct {
	encoder inference.Encoder
}

func NewEmbedding(encoder inference.Encoder) *Embedding {
	return &Embedding{encoder: encoder}
}

func (*Embedding) Strategy() Strategy { return StrategyEmbedding }

func (r *Embedding) Rank(ctx context.Context, resume string, docs *corpus.Corpus, topK int) ([]RawMatch, error) {
	if err := validate(docs, topK); err != nil {
		return nil, err
	}
	v, err := docs.Artifact("embedding:"+r.encoder.Name(), func() (any, error) {
		vecs, err := r.encoder.Embed(ctx, docs.Texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != docs.Len() {
			return nil, apperrors.ModelUnavailable(r.encoder.Name(),
				fmt.Errorf("got %d vectors for %d postings", len(vecs), docs.Len()))
		}
		return vecs, nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedding postings: %w", err)
	}
	docVecs := v.([][]float32)

	q, err := r.encoder.Embed(ctx, []string{resume})
	if err != nil {
		return nil, fmt.Errorf("embedding resume: %w", err)
	}
	if len(q) != 1 {
		return nil, apperrors.ModelUnavailable(r.encoder.Name(), fmt.Errorf("got %d vectors for the resume", len(q)))
	}

	scores := make([]float64, len(docVecs))
	for i, d := range docVecs {
		scores[i] = cosine(q[0], d)
	}
	return finish(ctx, scores, topK)
}
