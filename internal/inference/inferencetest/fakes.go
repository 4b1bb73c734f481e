// Package inferencetest provides deterministic stand-ins for the model
// handles.
package inferencetest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/inference"
)

// Encoder hashes lowercase words into a fixed number of buckets, so texts
// sharing words get similar vectors.
type Encoder struct {
	Dim   int
	Err   error
	Calls atomic.Int32
	Texts atomic.Int32
}

func (e *Encoder) Name() string { return "fake-encoder" }

func (e *Encoder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.Calls.Add(1)
	e.Texts.Add(int32(len(texts)))
	if e.Err != nil {
		return nil, e.Err
	}
	dim := e.Dim
	if dim <= 0 {
		dim = 64
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, dim)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			h := fnv.New32a()
			h.Write([]byte(w))
			vec[h.Sum32()%uint32(dim)]++
		}
		out[i] = vec
	}
	return out, nil
}

// Extractor tags every known word found in a text with its group.
type Extractor struct {
	Vocabulary map[string]string
	Err        error
	Calls      atomic.Int32
}

func (x *Extractor) Name() string { return "fake-extractor" }

func (x *Extractor) Extract(_ context.Context, text string) ([]inference.Entity, error) {
	x.Calls.Add(1)
	if x.Err != nil {
		return nil, x.Err
	}
	var out []inference.Entity
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == ';'
	}) {
		if group, ok := x.Vocabulary[strings.ToLower(w)]; ok {
			out = append(out, inference.Entity{Group: group, Word: w, Score: 0.99})
		}
	}
	return out, nil
}
