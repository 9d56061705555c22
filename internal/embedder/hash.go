package embedder

import (
	"context"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/lexical"
)

// HashEmbedder is an offline provider using signed feature hashing over
// stemmed terms and adjacent term pairs. The output is L2-normalised, so
// texts sharing vocabulary land near each other.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 384
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimension() int {
	return h.dim
}

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, h.dim)
	terms := lexical.Terms(text)
	for i, term := range terms {
		h.add(vec, term, 1)
		if i > 0 {
			h.add(vec, terms[i-1]+" "+term, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func (h *HashEmbedder) add(vec []float32, feature string, weight float32) {
	sum := xxhash.Sum64String(feature)
	bucket := sum % uint64(h.dim)
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}
