package ranking

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/inference"
	apperrors "github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/errors"
)

// Registry maps each strategy to its ranker.
type Registry struct {
	rankers map[Strategy]Ranker
}

// NewRegistry registers rankers by their Strategy.
func NewRegistry(rankers ...Ranker) *Registry {
	r := &Registry{rankers: make(map[Strategy]Ranker, len(rankers))}
	for _, rk := range rankers {
		r.rankers[rk.Strategy()] = rk
	}
	return r
}

// DefaultRegistry wires all four strategies to the given model handles.
func DefaultRegistry(models *inference.Models) *Registry {
	return NewRegistry(
		NewTFIDF(),
		NewBM25(),
		NewEmbedding(models.Encoder),
		NewEntity(models.Extractor, models.AllowedGroups),
	)
}

// Get returns the ranker for st.
func (r *Registry) Get(st Strategy) (Ranker, error) {
	rk, ok := r.rankers[st]
	if !ok {
		return nil, fmt.Errorf("%w %q", apperrors.ErrUnknownStrategy, st)
	}
	return rk, nil
}

// Available lists registered strategies in display order.
func (r *Registry) Available() []Strategy {
	out := make([]Strategy, 0, len(r.rankers))
	for _, st := range Strategies {
		if _, ok := r.rankers[st]; ok {
			out = append(out, st)
		}
	}
	return out
}
