// ABOUTME: Result records returned by the retrieval service
// ABOUTME: Ingest reports, answers and combined index/cache statistics
package rag

import (
	"time"

	"github.com/harper/docrag/internal/index"
	"github.com/harper/docrag/internal/models"
)

// IngestOptions tunes one ingestion run
type IngestOptions struct {
	// Prune deletes cached documents that are no longer in the corpus
	Prune bool
}

// IngestReport summarises one ingestion run
type IngestReport struct {
	RunID     string             `json:"run_id"`
	Directory string             `json:"directory"`
	StartedAt time.Time          `json:"started_at"`
	Documents int                `json:"documents"`
	Chunks    int                `json:"chunks"`
	Fresh     int                `json:"fresh"`
	Cached    int                `json:"cached"`
	Embedded  int                `json:"embedded"`
	Pruned    []string           `json:"pruned,omitempty"`
	Indexed   int                `json:"indexed"`
	Stale     []index.StaleEntry `json:"stale,omitempty"`
	Duration  time.Duration      `json:"duration"`
}

// Answer is a generated answer with the retrieval that grounded it
type Answer struct {
	Question   string                `json:"question"`
	Prompt     string                `json:"prompt"`
	Results    []models.SearchResult `json:"results"`
	Generation *models.Generation    `json:"generation"`
}

// Stats combines index and cache state
type Stats struct {
	Index          index.Stats `json:"index"`
	CacheRows      int         `json:"cache_rows"`
	Documents      int         `json:"documents"`
	EmbeddingModel string      `json:"embedding_model"`
	Generator      bool        `json:"generator"`
	Initialized    bool        `json:"initialized"`
}
