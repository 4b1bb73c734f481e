package ranking

import "container/heap"

// TopK returns the k best scores, by score descending with ties broken by
// ascending index. scores[i] is the score of document i.
func TopK(scores []float64, k int) []RawMatch {
	if k <= 0 {
		return []RawMatch{}
	}
	h := make(matchHeap, 0, min(k, len(scores))+1)
	for i, s := range scores {
		m := RawMatch{Index: i, Score: s}
		if h.Len() < k {
			heap.Push(&h, m)
			continue
		}
		if better(m, h[0]) {
			h[0] = m
			heap.Fix(&h, 0)
		}
	}
	out := make([]RawMatch, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(RawMatch)
	}
	return out
}

// better reports whether a ranks ahead of b.
func better(a, b RawMatch) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Index < b.Index
}

// matchHeap is a min-heap on rank: the root is the worst kept match.
type matchHeap []RawMatch

func (h matchHeap) Len() int           { return len(h) }
func (h matchHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h matchHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *matchHeap) Push(x any) {
	*h = append(*h, x.(RawMatch))
}

func (h *matchHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
