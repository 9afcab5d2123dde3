// ABOUTME: Flat backend holding one viant/vec Float32s per entry
// ABOUTME: Scores with the library's cosine distance, which equals 1 - dot for unit rows
package index

import (
	"math"

	"github.com/viant/vec/search"
)

type flatRows struct {
	vecs []search.Float32s
}

func newFlatRows(dim, capacity int) rows {
	return &flatRows{
		vecs: make([]search.Float32s, 0, capacity),
	}
}

func (f *flatRows) append(v []float32) {
	f.vecs = append(f.vecs, search.Float32s(v))
}

func (f *flatRows) len() int { return len(f.vecs) }

func (f *flatRows) row(i int) []float32 { return f.vecs[i] }

// scores is 1 - cosine distance per row. Zero vectors score 0.
func (f *flatRows) scores(query []float32) []float32 {
	q := search.Float32s(query)

	out := make([]float32, len(f.vecs))
	for i, v := range f.vecs {
		s := 1 - q.CosineDistance(v)
		if math.IsNaN(float64(s)) {
			s = 0
		}
		out[i] = s
	}
	return out
}
