package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// HashEmbedder derives a deterministic vector from the words of the text.
// Texts sharing words get similar vectors. It needs no network and is meant
// for offline runs and tests.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder returns a HashEmbedder; dims <= 0 means 64.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 64
	}
	return &HashEmbedder{dims: dims}
}

func (e *HashEmbedder) Embed(_ context.Context, text string) (Vector, error) {
	vec := make(Vector, e.dims)
	for _, word := range strings.Fields(strings.ToLower(NormalizeText(text))) {
		h := fnv.New64a()
		h.Write([]byte(word))
		seed := h.Sum64()
		for i := range vec {
			seed = seed*6364136223846793005 + 1442695040888963407
			vec[i] += float32(int64(seed>>33)%2001-1000) / 1000
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func (e *HashEmbedder) Dims() int { return e.dims }
