// ABOUTME: Property suite run against every index backend
// ABOUTME: Covers ranking, ties, dimension checks, rebuild joins and persistence
package index

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/harper/docrag/internal/embedding"
	"github.com/harper/docrag/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends() []string {
	return []string{BackendFlat, BackendMatrix}
}

func newIndex(t *testing.T, backend string) VectorIndex {
	t.Helper()
	idx, err := New(backend, nil)
	require.NoError(t, err)
	return idx
}

func meta(doc string, i int) models.ChunkMeta {
	return models.ChunkMeta{DocName: doc, ChunkIndex: i, Text: fmt.Sprintf("%s chunk %d", doc, i)}
}

// fixture returns vectors for a.md (2 chunks) and b.md (1 chunk)
func fixture() ([][]float32, []models.ChunkMeta) {
	vectors := [][]float32{
		embedding.Normalize([]float32{1, 0.1, 0}),
		embedding.Normalize([]float32{0.2, 1, 0}),
		embedding.Normalize([]float32{0, 0.3, 1}),
	}
	return vectors, []models.ChunkMeta{meta("a.md", 0), meta("a.md", 1), meta("b.md", 0)}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, idx VectorIndex)) {
	for _, b := range backends() {
		t.Run(b, func(t *testing.T) {
			fn(t, newIndex(t, b))
		})
	}
}

func TestNew(t *testing.T) {
	idx, err := New(BackendAuto, nil)
	require.NoError(t, err)
	assert.Equal(t, BackendFlat, idx.Stats().Backend)

	idx, err = New("", nil)
	require.NoError(t, err)
	assert.Equal(t, BackendFlat, idx.Stats().Backend)

	idx, err = New(BackendMatrix, nil)
	require.NoError(t, err)
	assert.Equal(t, BackendMatrix, idx.Stats().Backend)

	_, err = New("hnsw", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConfiguration))
	for _, b := range Backends() {
		assert.Contains(t, err.Error(), b)
	}
}

func TestSearch_SelfSimilarity(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx VectorIndex) {
		vectors, metas := fixture()
		require.NoError(t, idx.Add(vectors, metas, nil))

		for i, v := range vectors {
			results, err := idx.Search(v, 1)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, i, results[0].Ordinal)
			assert.InDelta(t, 1.0, results[0].Score, 1e-5)
		}
	})
}

func TestSearch_TwoDocumentsScenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx VectorIndex) {
		vectors, metas := fixture()
		require.NoError(t, idx.Add(vectors, metas, nil))

		results, err := idx.Search(vectors[0], 2)
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, "a.md", results[0].DocName)
		assert.Equal(t, 0, results[0].ChunkIndex)
		assert.Equal(t, "a.md chunk 0", results[0].Text)
		assert.Equal(t, models.ChunkKey("a.md", 0), results[0].Key)
		assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	})
}

func TestSearch_Bounds(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx VectorIndex) {
		q := []float32{1, 0, 0}

		results, err := idx.Search(q, 5)
		require.NoError(t, err, "empty index is not an error")
		assert.Empty(t, results)

		vectors, metas := fixture()
		require.NoError(t, idx.Add(vectors, metas, nil))

		results, err = idx.Search(q, 10)
		require.NoError(t, err)
		assert.Len(t, results, 3, "k above size returns everything")

		results, err = idx.Search(q, 0)
		require.NoError(t, err)
		assert.Empty(t, results)

		results, err = idx.Search(q, -1)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestSearch_QueryIsNormalised(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx VectorIndex) {
		vectors, metas := fixture()
		require.NoError(t, idx.Add(vectors, metas, nil))

		results, err := idx.Search([]float32{10, 1, 0}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, 0, results[0].Ordinal)
		assert.LessOrEqual(t, results[0].Score, float32(1.0001))
	})
}

func TestSearch_TiesByInsertionOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx VectorIndex) {
		same := []float32{0, 1, 0}
		vectors := [][]float32{{1, 0, 0}, same, same, same}
		metas := []models.ChunkMeta{meta("x", 0), meta("y", 0), meta("y", 1), meta("y", 2)}
		require.NoError(t, idx.Add(vectors, metas, nil))

		results, err := idx.Search(same, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, []int{1, 2, 3}, []int{results[0].Ordinal, results[1].Ordinal, results[2].Ordinal})
	})
}

func TestSearch_DimensionMismatch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx VectorIndex) {
		vectors, metas := fixture()
		require.NoError(t, idx.Add(vectors, metas, nil))

		_, err := idx.Search([]float32{1, 0}, 1)
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrDimensionMismatch))
	})
}

func TestAdd_Validation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx VectorIndex) {
		err := idx.Add([][]float32{{1, 0}}, nil, nil)
		assert.True(t, errors.Is(err, models.ErrLengthMismatch))

		err = idx.Add([][]float32{{1, 0}}, []models.ChunkMeta{meta("a", 0)}, []string{"k1", "k2"})
		assert.True(t, errors.Is(err, models.ErrLengthMismatch))

		require.NoError(t, idx.Add([][]float32{{1, 0}}, []models.ChunkMeta{meta("a", 0)}, []string{"k1"}))

		err = idx.Add([][]float32{{1, 0, 0}}, []models.ChunkMeta{meta("a", 1)}, nil)
		assert.True(t, errors.Is(err, models.ErrDimensionMismatch))

		// A failed Add leaves the index untouched
		assert.Equal(t, 1, idx.Stats().Vectors)
	})
}

func TestAdd_AppendOnly(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx VectorIndex) {
		vectors, metas := fixture()
		require.NoError(t, idx.Add(vectors[:2], metas[:2], nil))
		require.NoError(t, idx.Add(vectors[2:], metas[2:], nil))

		stats := idx.Stats()
		assert.Equal(t, 3, stats.Vectors)
		assert.Equal(t, 3, stats.Metadata)
		assert.Equal(t, 3, stats.Dimension)

		results, err := idx.Search(vectors[2], 1)
		require.NoError(t, err)
		assert.Equal(t, 2, results[0].Ordinal)
	})
}

func keyed(vectors [][]float32, metas []models.ChunkMeta) ([]models.KeyedVector, []models.ChunkRecord) {
	kvs := make([]models.KeyedVector, len(vectors))
	recs := make([]models.ChunkRecord, len(vectors))
	for i := range vectors {
		key := models.ChunkKey(metas[i].DocName, metas[i].ChunkIndex)
		kvs[i] = models.KeyedVector{Key: key, Vector: vectors[i]}
		recs[i] = models.ChunkRecord{Key: key, DocName: metas[i].DocName, ChunkIndex: metas[i].ChunkIndex, Text: metas[i].Text}
	}
	return kvs, recs
}

func TestRebuildFrom(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx VectorIndex) {
		require.NoError(t, idx.Add([][]float32{{1, 0, 0, 0}}, []models.ChunkMeta{meta("old", 0)}, nil))

		vectors, metas := fixture()
		kvs, recs := keyed(vectors, metas)

		report, err := idx.RebuildFrom(kvs, recs)
		require.NoError(t, err)
		assert.Equal(t, 3, report.Indexed)
		assert.Empty(t, report.Stale)

		stats := idx.Stats()
		assert.Equal(t, 3, stats.Vectors)
		assert.Equal(t, 3, stats.Dimension, "rebuild replaces the previous dimension")
	})
}

func TestRebuildFrom_StaleEntries(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx VectorIndex) {
		vectors, metas := fixture()
		kvs, recs := keyed(vectors, metas)

		// Drop metadata for a.md#1
		report, err := idx.RebuildFrom(kvs, []models.ChunkRecord{recs[0], recs[2]})
		require.NoError(t, err)
		assert.Equal(t, 2, report.Indexed)
		require.Len(t, report.Stale, 1)
		assert.Equal(t, kvs[1].Key, report.Stale[0].Key)

		results, err := idx.Search(vectors[2], 1)
		require.NoError(t, err)
		assert.Equal(t, "b.md", results[0].DocName)
		assert.Equal(t, 1, results[0].Ordinal, "ordinals are dense after skipping")
	})
}

func TestRebuildFrom_DeletedDocumentDisappears(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx VectorIndex) {
		vectors, metas := fixture()
		kvs, recs := keyed(vectors, metas)
		_, err := idx.RebuildFrom(kvs, recs)
		require.NoError(t, err)

		// Rebuild without a.md
		_, err = idx.RebuildFrom(kvs[2:], recs[2:])
		require.NoError(t, err)

		results, err := idx.Search(vectors[0], 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "b.md", results[0].DocName)
	})
}

func TestRebuildFrom_Empty(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx VectorIndex) {
		vectors, metas := fixture()
		require.NoError(t, idx.Add(vectors, metas, nil))

		report, err := idx.RebuildFrom(nil, nil)
		require.NoError(t, err)
		assert.Zero(t, report.Indexed)
		assert.Equal(t, Stats{Backend: idx.Stats().Backend}, idx.Stats())
	})
}

func TestReset(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx VectorIndex) {
		vectors, metas := fixture()
		require.NoError(t, idx.Add(vectors, metas, nil))
		idx.Reset()

		assert.Zero(t, idx.Stats().Vectors)
		// A reset index accepts a new dimension
		require.NoError(t, idx.Add([][]float32{{1, 0}}, []models.ChunkMeta{meta("n", 0)}, nil))
		assert.Equal(t, 2, idx.Stats().Dimension)
	})
}

func TestPersistRestore_RoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx VectorIndex) {
		vectors, metas := fixture()
		require.NoError(t, idx.Add(vectors, metas, nil))

		path := filepath.Join(t.TempDir(), "nested", "index.bin")
		require.NoError(t, idx.Persist(path))

		restored := newIndex(t, idx.Stats().Backend)
		require.NoError(t, restored.Restore(path))
		assert.Equal(t, idx.Stats(), restored.Stats())

		for _, q := range vectors {
			want, err := idx.Search(q, 3)
			require.NoError(t, err)
			got, err := restored.Search(q, 3)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}

		// No temp files left behind
		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestPersistRestore_Empty(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx VectorIndex) {
		path := filepath.Join(t.TempDir(), "index.bin")
		require.NoError(t, idx.Persist(path))

		restored := newIndex(t, BackendMatrix)
		require.NoError(t, restored.Restore(path))
		assert.Zero(t, restored.Stats().Vectors)
	})
}

func TestRestore_DegradesToEmpty(t *testing.T) {
	vectors, metas := fixture()
	src := newIndex(t, BackendFlat)
	require.NoError(t, src.Add(vectors, metas, nil))

	dir := t.TempDir()
	good := filepath.Join(dir, "good.bin")
	require.NoError(t, src.Persist(good))
	data, err := os.ReadFile(good)
	require.NoError(t, err)

	corrupt := append([]byte(nil), data...)
	corrupt[len(corrupt)/2] ^= 0xFF

	cases := map[string][]byte{
		"truncated": data[:len(data)-7],
		"corrupt":   corrupt,
		"garbage":   []byte("not an index"),
		"empty":     {},
	}

	forEachBackend(t, func(t *testing.T, idx VectorIndex) {
		for name, content := range cases {
			path := filepath.Join(t.TempDir(), name+".bin")
			require.NoError(t, os.WriteFile(path, content, 0644))

			require.NoError(t, idx.Add(vectors, metas, nil))
			require.NoError(t, idx.Restore(path), name)
			assert.Zero(t, idx.Stats().Vectors, name)
		}

		require.NoError(t, idx.Restore(filepath.Join(t.TempDir(), "missing.bin")))
		assert.Zero(t, idx.Stats().Vectors)

		err := idx.Restore("")
		assert.True(t, errors.Is(err, models.ErrConfiguration))
	})
}

func TestBackendsRankIdentically(t *testing.T) {
	flat := newIndex(t, BackendFlat)
	matrix := newIndex(t, BackendMatrix)

	// Deterministic, well-separated vectors plus a duplicate to force a tie
	var vectors [][]float32
	var metas []models.ChunkMeta
	for i := 0; i < 24; i++ {
		theta := float64(i) * 0.13
		vectors = append(vectors, []float32{
			float32(math.Cos(theta)),
			float32(math.Sin(theta)),
			float32(i % 3),
			0.5,
		})
		metas = append(metas, meta("doc", i))
	}
	vectors = append(vectors, vectors[5])
	metas = append(metas, meta("dup", 0))

	require.NoError(t, flat.Add(vectors, metas, nil))
	require.NoError(t, matrix.Add(vectors, metas, nil))

	for _, q := range [][]float32{vectors[5], vectors[0], vectors[17], {1, 1, 1, 1}} {
		a, err := flat.Search(q, 8)
		require.NoError(t, err)
		b, err := matrix.Search(q, 8)
		require.NoError(t, err)

		require.Len(t, b, len(a))
		for i := range a {
			assert.Equal(t, a[i].Ordinal, b[i].Ordinal, "rank %d", i)
			assert.InDelta(t, a[i].Score, b[i].Score, 1e-4)
		}
	}

	// vectors[5] and its duplicate tie; the earlier one wins
	results, err := matrix.Search(vectors[5], 2)
	require.NoError(t, err)
	assert.Equal(t, 5, results[0].Ordinal)
	assert.Equal(t, 24, results[1].Ordinal)
}

func TestSearch_ZeroVectorScoresZero(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx VectorIndex) {
		require.NoError(t, idx.Add(
			[][]float32{{0, 0, 0}, {1, 0, 0}},
			[]models.ChunkMeta{meta("zero", 0), meta("x", 0)}, nil))

		results, err := idx.Search([]float32{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "x", results[0].DocName)
		assert.InDelta(t, 1.0, results[0].Score, 1e-4)
		assert.InDelta(t, 0.0, results[1].Score, 1e-6)
	})
}

func TestEntries(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx VectorIndex) {
		assert.Empty(t, idx.Entries())

		vectors, metas := fixture()
		kvs, recs := keyed(vectors, metas)
		_, err := idx.RebuildFrom(kvs, recs)
		require.NoError(t, err)

		assert.Equal(t, recs, idx.Entries())
	})
}

func TestSearch_DuringRebuildSeesWholeIndex(t *testing.T) {
	small, smallMeta := fixture()
	smallKV, smallRecs := keyed(small, smallMeta)

	var large [][]float32
	var largeMeta []models.ChunkMeta
	for i := 0; i < 7; i++ {
		large = append(large, embedding.Normalize([]float32{float32(i + 1), 1, float32(i % 2)}))
		largeMeta = append(largeMeta, meta("large", i))
	}
	largeKV, largeRecs := keyed(large, largeMeta)

	forEachBackend(t, func(t *testing.T, idx VectorIndex) {
		_, err := idx.RebuildFrom(smallKV, smallRecs)
		require.NoError(t, err)

		const rounds = 200
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < rounds; i++ {
					var err error
					if (i+w)%2 == 0 {
						_, err = idx.RebuildFrom(largeKV, largeRecs)
					} else {
						_, err = idx.RebuildFrom(smallKV, smallRecs)
					}
					assert.NoError(t, err)
				}
			}(w)
		}
		for r := 0; r < 4; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < rounds; i++ {
					results, err := idx.Search([]float32{1, 1, 1}, 20)
					if !assert.NoError(t, err) {
						return
					}
					if len(results) == len(small) {
						for _, res := range results {
							assert.NotEqual(t, "large", res.DocName)
						}
						continue
					}
					if assert.Len(t, results, len(large), "partial index observed") {
						for _, res := range results {
							assert.Equal(t, "large", res.DocName)
						}
					}
				}
			}()
		}
		wg.Wait()
	})
}
