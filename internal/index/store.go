// ABOUTME: Shared index store: metadata, keys, locking, ranking and rebuild
// ABOUTME: Backend-specific vector storage sits behind the rows interface
package index

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/harper/docrag/internal/embedding"
	"github.com/harper/docrag/internal/logging"
	"github.com/harper/docrag/internal/models"
)

// rows holds vectors in insertion order and scores a unit query against them
type rows interface {
	append(v []float32)
	len() int
	row(i int) []float32
	scores(query []float32) []float32
}

type rowsFactory func(dim, capacity int) rows

// contents is everything swapped atomically on rebuild and restore
type contents struct {
	dim  int
	vecs rows
	meta []models.ChunkMeta
	keys []string
}

type store struct {
	backend string
	newRows rowsFactory
	logger  *log.Logger

	mu  sync.RWMutex
	cur *contents
}

func newStore(backend string, factory rowsFactory, logger *log.Logger) *store {
	s := &store{
		backend: backend,
		newRows: factory,
		logger:  logging.Component(logger, "index"),
	}
	s.cur = s.empty(0, 0)
	return s
}

func (s *store) empty(dim, capacity int) *contents {
	return &contents{
		dim:  dim,
		vecs: s.newRows(dim, capacity),
		meta: make([]models.ChunkMeta, 0, capacity),
		keys: make([]string, 0, capacity),
	}
}

// Add appends vectors with their metadata. A nil ids slice derives keys from
// the metadata. The first vector fixes the index dimension.
func (s *store) Add(vectors [][]float32, metadata []models.ChunkMeta, ids []string) error {
	if len(vectors) != len(metadata) {
		return fmt.Errorf("%w: %d vectors, %d metadata", models.ErrLengthMismatch, len(vectors), len(metadata))
	}
	if ids != nil && len(ids) != len(vectors) {
		return fmt.Errorf("%w: %d vectors, %d ids", models.ErrLengthMismatch, len(vectors), len(ids))
	}
	if len(vectors) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.cur.dim
	if dim == 0 {
		dim = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) != dim || dim == 0 {
			return fmt.Errorf("%w: vector %d has %d dimensions, index has %d",
				models.ErrDimensionMismatch, i, len(v), dim)
		}
	}

	s.cur.dim = dim
	for i, v := range vectors {
		key := models.ChunkKey(metadata[i].DocName, metadata[i].ChunkIndex)
		if ids != nil {
			key = ids[i]
		}
		s.cur.vecs.append(embedding.Normalize(v))
		s.cur.meta = append(s.cur.meta, metadata[i])
		s.cur.keys = append(s.cur.keys, key)
	}
	return nil
}

// Search returns up to k entries by descending score, ties by ascending ordinal
func (s *store) Search(query []float32, k int) ([]models.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.cur.vecs.len()
	if k <= 0 || n == 0 {
		return []models.SearchResult{}, nil
	}
	if len(query) != s.cur.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			models.ErrDimensionMismatch, len(query), s.cur.dim)
	}

	scores := s.cur.vecs.scores(embedding.Normalize(query))
	order := rank(scores, k)

	results := make([]models.SearchResult, len(order))
	for i, ord := range order {
		m := s.cur.meta[ord]
		results[i] = models.SearchResult{
			Ordinal:    ord,
			Key:        s.cur.keys[ord],
			Score:      scores[ord],
			DocName:    m.DocName,
			ChunkIndex: m.ChunkIndex,
			Text:       m.Text,
		}
	}
	return results, nil
}

// rank returns the ordinals of the k best scores
func rank(scores []float32, k int) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		if c := cmp.Compare(scores[b], scores[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if k < len(order) {
		order = order[:k]
	}
	return order
}

// RebuildFrom replaces the contents with vectors joined to metadata by key.
// Vectors whose key has no metadata are skipped and reported.
func (s *store) RebuildFrom(vectors []models.KeyedVector, metadata []models.ChunkRecord) (RebuildReport, error) {
	byKey := make(map[string]models.ChunkMeta, len(metadata))
	for _, r := range metadata {
		byKey[r.Key] = r.Meta()
	}

	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0].Vector)
	}
	next := s.empty(dim, len(vectors))

	var report RebuildReport
	for _, kv := range vectors {
		meta, ok := byKey[kv.Key]
		if !ok {
			report.Stale = append(report.Stale, StaleEntry{Key: kv.Key, Reason: "no metadata for cached vector"})
			s.logger.Warn("skipping stale cache entry", "key", kv.Key)
			continue
		}
		if len(kv.Vector) != dim {
			return RebuildReport{}, fmt.Errorf("%w: cached vector %s has %d dimensions, expected %d",
				models.ErrDimensionMismatch, kv.Key, len(kv.Vector), dim)
		}
		next.vecs.append(embedding.Normalize(kv.Vector))
		next.meta = append(next.meta, meta)
		next.keys = append(next.keys, kv.Key)
	}
	if len(next.keys) == 0 {
		next.dim = 0
	}
	report.Indexed = len(next.keys)

	s.swap(next)
	s.logger.Debug("index rebuilt", "backend", s.backend, "vectors", report.Indexed, "stale", len(report.Stale))
	return report, nil
}

func (s *store) swap(next *contents) {
	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
}

// Persist writes the index atomically to path
func (s *store) Persist(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty index path", models.ErrConfiguration)
	}

	s.mu.RLock()
	data := encode(s.cur)
	s.mu.RUnlock()

	if err := writeAtomic(path, data); err != nil {
		return fmt.Errorf("persist index to %s: %w", path, err)
	}
	s.logger.Debug("index persisted", "path", path, "bytes", len(data))
	return nil
}

// Restore loads path into the index. Unreadable or corrupt files leave an
// empty index and are only logged.
func (s *store) Restore(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty index path", models.ErrConfiguration)
	}

	next, err := readIndexFile(path, s.empty)
	if err != nil {
		s.logger.Warn("index restore failed, starting empty", "path", path, "err", err)
		s.swap(s.empty(0, 0))
		return nil
	}

	s.swap(next)
	s.logger.Debug("index restored", "path", path, "vectors", len(next.keys))
	return nil
}

// Entries lists key and metadata of every entry in ordinal order
func (s *store) Entries() []models.ChunkRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ChunkRecord, len(s.cur.keys))
	for i, key := range s.cur.keys {
		m := s.cur.meta[i]
		out[i] = models.ChunkRecord{Key: key, DocName: m.DocName, ChunkIndex: m.ChunkIndex, Text: m.Text}
	}
	return out
}

// Stats reports the backend and sizes
func (s *store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Backend:   s.backend,
		Vectors:   s.cur.vecs.len(),
		Dimension: s.cur.dim,
		Metadata:  len(s.cur.meta),
	}
}

// Reset drops all entries
func (s *store) Reset() {
	s.swap(s.empty(0, 0))
}
