package ranking

import (
	"context"
	"math"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/errors"
)

var (
	errEmptyCorpus = apperrors.Invalid("job corpus is empty")
	errBadTopK     = apperrors.Invalid("topK must be at least 1")
)

// cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func validate(docs *corpus.Corpus, topK int) error {
	if docs == nil || docs.Len() == 0 {
		return errEmptyCorpus
	}
	if topK < 1 {
		return errBadTopK
	}
	return nil
}

// finish selects the top matches unless the caller gave up meanwhile.
func finish(ctx context.Context, scores []float64, topK int) ([]RawMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return TopK(scores, topK), nil
}
