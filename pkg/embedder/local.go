// Package embedder maps text fragments to fixed-dimension dense vectors.
// The local embedder is a deterministic feature-hashing model; the openai
// embedder delegates to a remote embeddings API. Both are selected through
// the factory by configuration.
package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/finlex/docindexer/pkg/core"
)

// DefaultDimension is the vector width used when configuration gives none.
const DefaultDimension = 384

// LocalEmbedder is a deterministic text-to-vector function. Tokens and token
// bigrams are hashed into d buckets with a sign bit, then the vector is
// L2-normalised. Pure and safe for concurrent use.
type LocalEmbedder struct {
	dim int
}

// NewLocalEmbedder creates a local embedder of the given dimension.
func NewLocalEmbedder(dim int) *LocalEmbedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &LocalEmbedder{dim: dim}
}

// Dimension returns the vector width.
func (e *LocalEmbedder) Dimension() int { return e.dim }

// Embed generates one vector per input text.
func (e *LocalEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, core.WrapError(core.ErrTimeout, err, "embedding cancelled")
		}
		vectors[i] = e.embedOne(text)
	}
	return vectors, nil
}

func (e *LocalEmbedder) embedOne(text string) []float64 {
	v := make([]float64, e.dim)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return v
	}

	for i, tok := range tokens {
		addFeature(v, tok)
		if i+1 < len(tokens) {
			addFeature(v, tok+"_"+tokens[i+1])
		}
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range v {
			v[i] /= norm
		}
	}
	return v
}

// addFeature hashes a feature into its bucket with a sign derived from a
// second hash, so collisions cancel rather than pile up.
func addFeature(v []float64, feature string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := int(sum % uint64(len(v)))
	if (sum>>63)&1 == 1 {
		v[bucket] -= 1
	} else {
		v[bucket] += 1
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
