package ranking

import (
	"context"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/text"
)

// TFIDF ranks by cosine similarity of L2-normalised TF-IDF vectors. The
// vocabulary and document frequencies span the resume and the corpus
// together; English stop words are excluded. IDF is smoothed:
// ln((1+n)/(1+df)) + 1, with n counting the resume as a document.
type TFIDF struct{}

func NewTFIDF() *TFIDF { return &TFIDF{} }

func (*TFIDF) Strategy() Strategy { return StrategyTFIDF }

// tfidfIndex is the corpus half of the joint fit. normSq holds each
// document's squared vector length assuming none of its terms occur in the
// resume; Rank corrects it for the terms that do.
type tfidfIndex struct {
	counts []map[string]int
	df     map[string]int
	normSq []float64
	n      float64
}

func (ix *tfidfIndex) idf(df int) float64 {
	return math.Log((1+ix.n)/(1+float64(df))) + 1
}

func buildTFIDFIndex(texts []string) *tfidfIndex {
	ix := &tfidfIndex{
		counts: make([]map[string]int, len(texts)),
		df:     make(map[string]int),
		normSq: make([]float64, len(texts)),
		n:      float64(len(texts) + 1),
	}
	for i, t := range texts {
		counts := termCounts(text.RemoveStopWords(text.Tokenize(t)))
		ix.counts[i] = counts
		for term := range counts {
			ix.df[term]++
		}
	}
	for i, counts := range ix.counts {
		var sum float64
		for _, term := range sortedTerms(counts) {
			w := float64(counts[term]) * ix.idf(ix.df[term])
			sum += w * w
		}
		ix.normSq[i] = sum
	}
	return ix
}

func (r *TFIDF) Rank(ctx context.Context, resume string, docs *corpus.Corpus, topK int) ([]RawMatch, error) {
	if err := validate(docs, topK); err != nil {
		return nil, err
	}
	v, err := docs.Artifact("tfidf", func() (any, error) {
		return buildTFIDFIndex(docs.Texts), nil
	})
	if err != nil {
		return nil, err
	}
	ix := v.(*tfidfIndex)

	query := termCounts(text.RemoveStopWords(text.Tokenize(resume)))
	terms := sortedTerms(query)
	// The resume adds one to the document frequency of each of its terms.
	weights := make(map[string]float64, len(query))
	var queryNormSq float64
	for _, term := range terms {
		w := ix.idf(ix.df[term] + 1)
		weights[term] = w
		qw := float64(query[term]) * w
		queryNormSq += qw * qw
	}

	scores := make([]float64, docs.Len())
	if queryNormSq == 0 {
		return finish(ctx, scores, topK)
	}
	queryNorm := math.Sqrt(queryNormSq)

	for i, counts := range ix.counts {
		normSq := ix.normSq[i]
		var dot float64
		for _, term := range terms {
			tf, ok := counts[term]
			if !ok {
				continue
			}
			base := float64(tf) * ix.idf(ix.df[term])
			adj := float64(tf) * weights[term]
			normSq += adj*adj - base*base
			dot += float64(query[term]) * weights[term] * adj
		}
		if dot == 0 || normSq <= 0 {
			continue
		}
		scores[i] = dot / (queryNorm * math.Sqrt(normSq))
	}
	return finish(ctx, scores, topK)
}

// sortedTerms fixes the summation order so scores are bit-for-bit
// reproducible.
func sortedTerms(counts map[string]int) []string {
	terms := make([]string, 0, len(counts))
	for t := range counts {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

func termCounts(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}
