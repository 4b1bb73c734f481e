package ranking

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/corpus"
)

func syntheticCorpus(n int) *corpus.Corpus {
	skills := []string{"python", "go", "sql", "java", "kafka", "spark", "aws", "docker", "react", "excel", "nursing", "sales"}
	titles := []string{"engineer", "developer", "analyst", "manager", "scientist", "nurse"}
	rng := rand.New(rand.NewSource(42))
	texts := make([]string, n)
	for i := range texts {
		t := titles[rng.Intn(len(titles))]
		s := ""
		for j := 0; j < 8; j++ {
			s += skills[rng.Intn(len(skills))] + ", "
		}
		texts[i] = fmt.Sprintf("Senior %s %s", t, s)
	}
	return corpus.New(texts, "")
}

func benchmarkRanker(b *testing.B, r Ranker) {
	docs := syntheticCorpus(2000)
	resume := "Backend engineer with Python, Go, Kafka and AWS experience"
	if _, err := r.Rank(context.Background(), resume, docs, 5); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := r.Rank(context.Background(), resume, docs, 5); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTFIDF(b *testing.B) { benchmarkRanker(b, NewTFIDF()) }
func BenchmarkBM25(b *testing.B)  { benchmarkRanker(b, NewBM25()) }

func BenchmarkTopK(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	scores := make([]float64, 2000)
	for i := range scores {
		scores[i] = rng.Float64()
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		TopK(scores, 5)
	}
}
