package engram

import (
	"context"
	"hash/fnv"
	"strings"
)

// LocalEmbedder is a dependency-free, in-process embedder standing in for a
// local MiniLM-family model. It hashes overlapping word shingles into a
// fixed-width vector and L2-normalizes the result, producing embeddings that
// are deterministic and stable across runs for the same text, with related
// vocabulary hashing into overlapping buckets. This is not a learned
// embedding; it exists so a store can run with zero external services.
type LocalEmbedder struct {
	dimension int
}

// NewLocalEmbedder creates a local embedder with the given output
// dimension. A dimension of 0 defaults to 384, matching the MiniLM family
// the provider imitates.
func NewLocalEmbedder(dimension int) *LocalEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &LocalEmbedder{dimension: dimension}
}

// Embed hashes text into a dense, unit-norm vector of Dimension().
func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimension)
	lower := strings.ToLower(text)
	words := strings.Fields(lower)
	if len(words) == 0 {
		return vec, nil
	}

	addToken := func(tok string) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		idx := int(h.Sum32()) % e.dimension
		if idx < 0 {
			idx += e.dimension
		}
		sign := float32(1)
		if (h.Sum32()>>7)&1 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}

	for i, w := range words {
		addToken(w)
		if i+1 < len(words) {
			addToken(w + "_" + words[i+1])
		}
	}

	return Normalize(vec), nil
}

// Dimension returns the configured embedding width.
func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}
