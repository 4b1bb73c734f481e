// Package corpus loads job postings, samples them deterministically and
// keeps the prepared corpus with its per-strategy artifacts until the
// version is invalidated.
package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Corpus is an ordered, immutable list of job-posting texts. A document's
// identity is its index into Texts.
type Corpus struct {
	Texts    []string
	Version  string
	LoadedAt time.Time

	mu        sync.Mutex
	artifacts map[string]*artifact
}

type artifact struct {
	mu    sync.Mutex
	built bool
	value any
}

// New wraps texts as a corpus. An empty version is derived from the texts.
func New(texts []string, version string) *Corpus {
	if version == "" {
		version = Fingerprint(texts)
	}
	return &Corpus{
		Texts:     texts,
		Version:   version,
		LoadedAt:  time.Now().UTC(),
		artifacts: make(map[string]*artifact),
	}
}

// Len returns the number of documents.
func (c *Corpus) Len() int { return len(c.Texts) }

// Artifact returns the value stored under key, building it on first use.
// Concurrent callers for the same key wait for a single build. A failed
// build is not stored, so the next caller tries again.
func (c *Corpus) Artifact(key string, build func() (any, error)) (any, error) {
	c.mu.Lock()
	if c.artifacts == nil {
		c.artifacts = make(map[string]*artifact)
	}
	a, ok := c.artifacts[key]
	if !ok {
		a = &artifact{}
		c.artifacts[key] = a
	}
	c.mu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.built {
		return a.value, nil
	}
	v, err := build()
	if err != nil {
		return nil, err
	}
	a.value = v
	a.built = true
	return v, nil
}

// ArtifactKeys lists the artifacts built so far.
func (c *Corpus) ArtifactKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.artifacts))
	for k, a := range c.artifacts {
		a.mu.Lock()
		if a.built {
			keys = append(keys, k)
		}
		a.mu.Unlock()
	}
	return keys
}

// Fingerprint hashes the ordered texts into a short version string.
func Fingerprint(texts []string) string {
	h := sha256.New()
	for _, t := range texts {
		h.Write([]byte(t))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}
