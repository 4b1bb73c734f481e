package corpus

import "math/rand"

// Sample returns n texts chosen with a seeded partial Fisher-Yates shuffle
// over indices. The same texts, n and seed always yield the same sample.
// n <= 0 or n >= len(texts) returns texts unchanged.
func Sample(texts []string, n int, seed int64) []string {
	if n <= 0 || n >= len(texts) {
		return texts
	}
	rng := rand.New(rand.NewSource(seed))
	idx := make([]int, len(texts))
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < n; i++ {
		j := i + rng.Intn(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = texts[idx[i]]
	}
	return out
}
