package ranking

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/inference"
)

// DefaultEntityGroups are the entity groups kept for overlap scoring.
var DefaultEntityGroups = []string{"ORG", "JOB", "MISC", "SKILL", "TECH", "TOOL"}

// EntitySet is a set of lowercase entity strings.
type EntitySet map[string]struct{}

// Entity ranks by Jaccard overlap between the resume's entity set and each
// posting's. Posting sets are extracted once per corpus version.
type Entity struct {
	extractor inference.EntityExtractor
	allowed   map[string]bool
	key       string
}

// NewEntity keeps only spans whose group is in groups; nil means
// DefaultEntityGroups.
func NewEntity(extractor inference.EntityExtractor, groups []string) *Entity {
	if groups == nil {
		groups = DefaultEntityGroups
	}
	allowed := make(map[string]bool, len(groups))
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		g = strings.ToUpper(strings.TrimSpace(g))
		allowed[g] = true
		names = append(names, g)
	}
	sort.Strings(names)
	return &Entity{
		extractor: extractor,
		allowed:   allowed,
		key:       "entity:" + extractor.Name() + ":" + strings.Join(names, ","),
	}
}

func (*Entity) Strategy() Strategy { return StrategyEntity }

// Entities extracts the filtered, lowercased entity set of text.
func (r *Entity) Entities(ctx context.Context, text string) (EntitySet, error) {
	spans, err := r.extractor.Extract(ctx, text)
	if err != nil {
		return nil, err
	}
	set := make(EntitySet, len(spans))
	for _, s := range spans {
		if !r.allowed[strings.ToUpper(s.Group)] {
			continue
		}
		w := strings.ToLower(strings.TrimSpace(s.Word))
		if w == "" {
			continue
		}
		set[w] = struct{}{}
	}
	return set, nil
}

func (r *Entity) Rank(ctx context.Context, resume string, docs *corpus.Corpus, topK int) ([]RawMatch, error) {
	if err := validate(docs, topK); err != nil {
		return nil, err
	}
	v, err := docs.Artifact(r.key, func() (any, error) {
		sets := make([]EntitySet, docs.Len())
		for i, t := range docs.Texts {
			set, err := r.Entities(ctx, t)
			if err != nil {
				return nil, fmt.Errorf("posting %d: %w", i, err)
			}
			sets[i] = set
		}
		return sets, nil
	})
	if err != nil {
		return nil, fmt.Errorf("extracting posting entities: %w", err)
	}
	docSets := v.([]EntitySet)

	resumeSet, err := r.Entities(ctx, resume)
	if err != nil {
		return nil, fmt.Errorf("extracting resume entities: %w", err)
	}

	scores := make([]float64, len(docSets))
	for i, s := range docSets {
		scores[i] = Jaccard(resumeSet, s)
	}
	return finish(ctx, scores, topK)
}

// Jaccard returns |a ∩ b| / |a ∪ b|, and 0 when both sets are empty.
func Jaccard(a, b EntitySet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// NewEntitySet builds a set from words as given.
func NewEntitySet(words ...string) EntitySet {
	s := make(EntitySet, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}
