// ABOUTME: Deterministic feature-hashing embedding provider for offline use and tests
// ABOUTME: Hashes word unigrams and bigrams into signed buckets; no network, no model files
package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashProvider embeds text by hashing its tokens into a fixed number of buckets.
// Texts sharing words get similar vectors, which is enough for local retrieval.
type HashProvider struct {
	dim int
}

// NewHashProvider creates a HashProvider with dim buckets
func NewHashProvider(dim int) *HashProvider {
	if dim <= 0 {
		dim = 384
	}
	return &HashProvider{dim: dim}
}

// Dimension returns the vector dimension
func (p *HashProvider) Dimension() int {
	return p.dim
}

// ModelName returns hash-<dim>
func (p *HashProvider) ModelName() string {
	return fmt.Sprintf("hash-%d", p.dim)
}

// Embed returns one raw (unnormalised) vector per text
func (p *HashProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.embedOne(text)
	}
	return out, nil
}

func (p *HashProvider) embedOne(text string) []float32 {
	vec := make([]float32, p.dim)
	tokens := tokenize(text)

	for i, tok := range tokens {
		p.add(vec, tok, 1)
		if i > 0 {
			p.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return vec
}

func (p *HashProvider) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := int(sum % uint64(p.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}

// tokenize lowercases text and splits it on anything that is not a letter or digit
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
