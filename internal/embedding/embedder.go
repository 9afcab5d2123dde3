// ABOUTME: Embedder turns texts into unit-length vectors and reuses cached document vectors
// ABOUTME: Wraps a Provider with normalisation, dimension checks and the fingerprint cache path
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/charmbracelet/log"
	"github.com/harper/docrag/internal/logging"
	"github.com/harper/docrag/internal/models"
)

// normEpsilon keeps normalisation finite for zero vectors
const normEpsilon = 1e-9

// Provider produces raw embedding vectors for a batch of texts
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

// Cache is the part of the embedding cache the Embedder needs
type Cache interface {
	Fingerprint(ctx context.Context, doc string) (string, bool, error)
	VectorsForDocument(ctx context.Context, doc string) ([][]float32, error)
	Put(ctx context.Context, doc string, texts []string, vectors [][]float32) (int, error)
	Delete(ctx context.Context, doc string) (int64, error)
}

// Embedder normalises provider output and consults the cache per document
type Embedder struct {
	provider Provider
	cache    Cache
	logger   *log.Logger
}

// New creates an Embedder. cache may be nil when only Embed is used.
func New(provider Provider, cache Cache, logger *log.Logger) *Embedder {
	return &Embedder{
		provider: provider,
		cache:    cache,
		logger:   logging.Component(logger, "embedder"),
	}
}

// Dimension returns the provider's vector dimension
func (e *Embedder) Dimension() int {
	return e.provider.Dimension()
}

// ModelName returns the provider's model identifier
func (e *Embedder) ModelName() string {
	return e.provider.ModelName()
}

// Embed returns one L2-normalised vector per text
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	raw, err := e.provider.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d texts with %s: %w", len(texts), e.provider.ModelName(), err)
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts",
			models.ErrDimensionMismatch, e.provider.ModelName(), len(raw), len(texts))
	}

	dim := e.provider.Dimension()
	out := make([][]float32, len(raw))
	for i, v := range raw {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: %s returned %d dimensions, want %d",
				models.ErrDimensionMismatch, e.provider.ModelName(), len(v), dim)
		}
		out[i] = Normalize(v)
	}
	return out, nil
}

// EmbedWithCache returns vectors for the chunk texts of doc. When the stored
// fingerprint matches, cached vectors are returned and fresh is false. Otherwise
// stale rows are replaced by newly computed vectors and fresh is true.
func (e *Embedder) EmbedWithCache(ctx context.Context, doc string, texts []string) (vectors [][]float32, fresh bool, err error) {
	if e.cache == nil {
		return nil, false, fmt.Errorf("%w: embedder has no cache", models.ErrConfiguration)
	}

	current := models.Fingerprint(texts)
	cached, ok, err := e.cache.Fingerprint(ctx, doc)
	if err != nil {
		return nil, false, err
	}

	if ok && cached == current {
		vectors, err := e.cache.VectorsForDocument(ctx, doc)
		if err != nil {
			return nil, false, err
		}
		// Same concatenation can come from a different split
		if len(vectors) == len(texts) {
			e.logger.Debug("cache hit", "doc", doc, "chunks", len(texts))
			return vectors, false, nil
		}
	}

	if ok {
		removed, err := e.cache.Delete(ctx, doc)
		if err != nil {
			return nil, false, err
		}
		e.logger.Info("document changed, replacing cached chunks", "doc", doc, "removed", removed)
	}

	if len(texts) == 0 {
		return [][]float32{}, ok, nil
	}

	vectors, err = e.Embed(ctx, texts)
	if err != nil {
		return nil, false, err
	}
	inserted, err := e.cache.Put(ctx, doc, texts, vectors)
	if err != nil {
		return nil, false, err
	}
	e.logger.Debug("cache miss", "doc", doc, "chunks", len(texts), "inserted", inserted)

	return vectors, true, nil
}

// Normalize returns v / (||v|| + 1e-9) as a new slice
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + normEpsilon

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
