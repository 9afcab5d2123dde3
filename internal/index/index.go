// ABOUTME: VectorIndex interface, backend selection and rebuild reporting
// ABOUTME: Backends share one store and differ only in how vectors are held and scored
package index

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/harper/docrag/internal/models"
)

// Backend names accepted by New
const (
	BackendAuto   = "auto"
	BackendFlat   = "flat"
	BackendMatrix = "matrix"
)

// VectorIndex is an in-memory inner-product index over unit vectors with
// chunk metadata kept in parallel.
type VectorIndex interface {
	Add(vectors [][]float32, metadata []models.ChunkMeta, ids []string) error
	Search(query []float32, k int) ([]models.SearchResult, error)
	RebuildFrom(vectors []models.KeyedVector, metadata []models.ChunkRecord) (RebuildReport, error)
	Persist(path string) error
	Restore(path string) error
	Entries() []models.ChunkRecord
	Stats() Stats
	Reset()
}

// Stats describes the current index contents
type Stats struct {
	Backend   string `json:"backend" yaml:"backend"`
	Vectors   int    `json:"vectors" yaml:"vectors"`
	Dimension int    `json:"dimension" yaml:"dimension"`
	Metadata  int    `json:"metadata" yaml:"metadata"`
}

// StaleEntry is a cached vector that had no metadata during a rebuild
type StaleEntry struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// RebuildReport summarises one RebuildFrom call
type RebuildReport struct {
	Indexed int          `json:"indexed"`
	Stale   []StaleEntry `json:"stale,omitempty"`
}

// Backends lists the names accepted by New
func Backends() []string {
	return []string{BackendAuto, BackendFlat, BackendMatrix}
}

// New returns an empty index for the named backend
func New(backend string, logger *log.Logger) (VectorIndex, error) {
	switch backend {
	case "", BackendAuto, BackendFlat:
		return newStore(BackendFlat, newFlatRows, logger), nil
	case BackendMatrix:
		return newStore(BackendMatrix, newMatrixRows, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown index backend %q (want %s)",
			models.ErrConfiguration, backend, strings.Join(Backends(), ", "))
	}
}
