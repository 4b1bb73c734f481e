package ranking

import (
	"context"
	"math"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/text"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// BM25 ranks with Okapi BM25. Corpus statistics come from the documents
// only; the resume is the query, and a term repeated in the resume counts
// once per occurrence.
type BM25 struct {
	K1 float64
	B  float64
}

func NewBM25() *BM25 { return &BM25{K1: bm25K1, B: bm25B} }

func (*BM25) Strategy() Strategy { return StrategyBM25 }

type posting struct {
	doc int
	tf  int
}

type bm25Index struct {
	postings map[string][]posting
	lengths  []float64
	avgLen   float64
	n        float64
}

func buildBM25Index(texts []string) *bm25Index {
	ix := &bm25Index{
		postings: make(map[string][]posting),
		lengths:  make([]float64, len(texts)),
		n:        float64(len(texts)),
	}
	var total float64
	for i, t := range texts {
		tokens := text.Tokenize(t)
		for term, tf := range termCounts(tokens) {
			ix.postings[term] = append(ix.postings[term], posting{doc: i, tf: tf})
		}
		ix.lengths[i] = float64(len(tokens))
		total += float64(len(tokens))
	}
	if len(texts) > 0 {
		ix.avgLen = total / float64(len(texts))
	}
	return ix
}

// idf is the non-negative ln(1 + (N - df + 0.5)/(df + 0.5)).
func (ix *bm25Index) idf(df int) float64 {
	d := float64(df)
	return math.Log(1 + (ix.n-d+0.5)/(d+0.5))
}

func (r *BM25) Rank(ctx context.Context, resume string, docs *corpus.Corpus, topK int) ([]RawMatch, error) {
	if err := validate(docs, topK); err != nil {
		return nil, err
	}
	v, err := docs.Artifact("bm25", func() (any, error) {
		return buildBM25Index(docs.Texts), nil
	})
	if err != nil {
		return nil, err
	}
	ix := v.(*bm25Index)

	scores := make([]float64, docs.Len())
	if ix.avgLen == 0 {
		return finish(ctx, scores, topK)
	}

	query := termCounts(text.Tokenize(resume))
	for _, term := range sortedTerms(query) {
		qf := query[term]
		postings := ix.postings[term]
		if len(postings) == 0 {
			continue
		}
		idf := ix.idf(len(postings))
		for _, p := range postings {
			f := float64(p.tf)
			norm := f + r.K1*(1-r.B+r.B*ix.lengths[p.doc]/ix.avgLen)
			scores[p.doc] += float64(qf) * idf * f * (r.K1 + 1) / norm
		}
	}
	return finish(ctx, scores, topK)
}
