package ranking

// Normalize min-max scales the scores of exactly this batch into [0, 1],
// keeping order and indices. When every score is equal, including a batch
// of one, all scores become 0.
func Normalize(matches []RawMatch) []NormalizedMatch {
	out := make([]NormalizedMatch, len(matches))
	if len(matches) == 0 {
		return out
	}
	lo, hi := matches[0].Score, matches[0].Score
	for _, m := range matches[1:] {
		lo = min(lo, m.Score)
		hi = max(hi, m.Score)
	}
	spread := hi - lo
	for i, m := range matches {
		out[i] = NormalizedMatch{Index: m.Index}
		if spread > 0 {
			out[i].Score = (m.Score - lo) / spread
		}
	}
	return out
}
