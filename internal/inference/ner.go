package inference

import (
	"context"
	"strings"
	"time"
)

// HFTokenClassifier calls a Hugging Face token-classification endpoint
// (Inference API or a self-hosted pipeline server) with simple aggregation.
type HFTokenClassifier struct {
	endpoint string
	model    string
	client   jsonClient
}

func NewHFTokenClassifier(endpoint, model, apiKey string, timeout time.Duration) *HFTokenClassifier {
	return &HFTokenClassifier{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client:   newJSONClient(timeout, apiKey),
	}
}

func (c *HFTokenClassifier) Name() string { return c.model }

// tokenPrediction covers both response shapes: aggregated spans carry
// entity_group, raw per-token output carries entity with a B-/I- tag.
type tokenPrediction struct {
	EntityGroup string  `json:"entity_group"`
	Entity      string  `json:"entity"`
	Word        string  `json:"word"`
	Score       float64 `json:"score"`
	Start       *int    `json:"start"`
	End         *int    `json:"end"`
}

func (c *HFTokenClassifier) Extract(ctx context.Context, text string) ([]Entity, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	payload := map[string]any{
		"inputs": text,
		"parameters": map[string]any{
			"aggregation_strategy": "simple",
		},
	}
	var preds []tokenPrediction
	if err := c.client.post(ctx, c.endpoint, payload, &preds); err != nil {
		return nil, err
	}
	return aggregate(text, preds), nil
}

// aggregate merges raw token predictions into spans the way the "simple"
// strategy does: a span continues while the entity type stays the same and
// the token is tagged I- or is a "##" word piece. Already aggregated
// predictions pass through unchanged.
func aggregate(text string, preds []tokenPrediction) []Entity {
	var out []Entity
	var cur *span

	flush := func() {
		if cur != nil {
			out = append(out, cur.entity(text))
			cur = nil
		}
	}

	for _, p := range preds {
		if p.EntityGroup != "" {
			flush()
			e := Entity{Group: p.EntityGroup, Word: strings.TrimSpace(p.Word), Score: p.Score}
			if p.Start != nil && p.End != nil {
				e.Start, e.End = *p.Start, *p.End
			}
			out = append(out, e)
			continue
		}

		tag, group := splitTag(p.Entity)
		if group == "" {
			flush()
			continue
		}
		subword := strings.HasPrefix(p.Word, "##")
		if cur != nil && cur.group == group && (tag == "I" || subword) {
			cur.add(p, subword)
			continue
		}
		flush()
		cur = newSpan(group, p)
	}
	flush()
	return out
}

// splitTag turns "B-ORG" into ("B", "ORG"). "O" has no group.
func splitTag(label string) (tag, group string) {
	if label == "" || label == "O" {
		return "", ""
	}
	if len(label) > 2 && (label[:2] == "B-" || label[:2] == "I-") {
		return label[:1], label[2:]
	}
	return "I", label
}

type span struct {
	group  string
	words  strings.Builder
	scores []float64
	start  int
	end    int
	hasPos bool
}

func newSpan(group string, p tokenPrediction) *span {
	s := &span{group: group}
	s.words.WriteString(cleanPiece(p.Word))
	s.scores = append(s.scores, p.Score)
	if p.Start != nil && p.End != nil {
		s.start, s.end, s.hasPos = *p.Start, *p.End, true
	}
	return s
}

func (s *span) add(p tokenPrediction, subword bool) {
	word := p.Word
	if subword {
		s.words.WriteString(strings.TrimPrefix(word, "##"))
	} else if strings.HasPrefix(word, "Ġ") || strings.HasPrefix(word, "▁") {
		s.words.WriteString(" " + cleanPiece(word))
	} else if s.hasPos && p.Start != nil && *p.Start == s.end {
		s.words.WriteString(word)
	} else {
		s.words.WriteString(" " + word)
	}
	s.scores = append(s.scores, p.Score)
	if s.hasPos && p.End != nil {
		s.end = *p.End
	}
}

func (s *span) entity(text string) Entity {
	var sum float64
	for _, sc := range s.scores {
		sum += sc
	}
	e := Entity{
		Group: s.group,
		Word:  strings.TrimSpace(s.words.String()),
		Score: sum / float64(len(s.scores)),
	}
	if s.hasPos {
		e.Start, e.End = s.start, s.end
		// Offsets count characters, not bytes.
		runes := []rune(text)
		if s.start >= 0 && s.end <= len(runes) && s.start < s.end {
			e.Word = strings.TrimSpace(string(runes[s.start:s.end]))
		}
	}
	return e
}

func cleanPiece(w string) string {
	w = strings.TrimPrefix(w, "##")
	w = strings.TrimPrefix(w, "Ġ")
	return strings.TrimPrefix(w, "▁")
}
