// ABOUTME: Service orchestrates ingestion, retrieval, prompt assembly and answering
// ABOUTME: Ties the segmenter, embedder, embedding cache, vector index and generator together
package rag

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harper/docrag/internal/config"
	"github.com/harper/docrag/internal/core"
	"github.com/harper/docrag/internal/index"
	"github.com/harper/docrag/internal/logging"
	"github.com/harper/docrag/internal/models"
	"github.com/harper/docrag/internal/storage/sqlite"
)

// Segmenter splits document text into chunk texts
type Segmenter interface {
	Segment(text string) ([]string, error)
}

// Embedder produces unit vectors, reusing cached vectors per document
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedWithCache(ctx context.Context, doc string, texts []string) ([][]float32, bool, error)
	ModelName() string
}

// Cache is the embedding cache as seen by the service
type Cache interface {
	AllVectors(ctx context.Context) ([]models.KeyedVector, error)
	AllMetadata(ctx context.Context) ([]models.ChunkRecord, error)
	FindByOrdinal(ctx context.Context, ordinal int) (*models.ChunkRecord, error)
	Documents(ctx context.Context) ([]models.DocumentSummary, error)
	Delete(ctx context.Context, doc string) (int64, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// Generator turns a prompt into text
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (*models.Generation, error)
}

// Options holds the collaborators of a Service. Generator may be nil.
type Options struct {
	Config    *config.Config
	Segmenter Segmenter
	Embedder  Embedder
	Cache     Cache
	Index     index.VectorIndex
	Generator Generator
	Logger    *log.Logger
}

// Service is the retrieval core. Writers (ingest, delete, reset, load) are
// serialised; queries run concurrently against the index.
type Service struct {
	cfg       *config.Config
	segmenter Segmenter
	embedder  Embedder
	cache     Cache
	index     index.VectorIndex
	generator Generator
	hydrator  *core.ContextHydrator
	logger    *log.Logger

	writeMu     sync.Mutex
	initialized atomic.Bool
	closers     []func() error
}

// New validates opts and creates a Service
func New(opts Options) (*Service, error) {
	switch {
	case opts.Config == nil:
		return nil, fmt.Errorf("%w: config is required", models.ErrConfiguration)
	case opts.Segmenter == nil:
		return nil, fmt.Errorf("%w: segmenter is required", models.ErrConfiguration)
	case opts.Embedder == nil:
		return nil, fmt.Errorf("%w: embedder is required", models.ErrConfiguration)
	case opts.Cache == nil:
		return nil, fmt.Errorf("%w: cache is required", models.ErrConfiguration)
	case opts.Index == nil:
		return nil, fmt.Errorf("%w: index is required", models.ErrConfiguration)
	}

	return &Service{
		cfg:       opts.Config,
		segmenter: opts.Segmenter,
		embedder:  opts.Embedder,
		cache:     opts.Cache,
		index:     opts.Index,
		generator: opts.Generator,
		hydrator:  core.NewContextHydrator(opts.Config.CharsPerToken),
		logger:    logging.Component(opts.Logger, "rag"),
	}, nil
}

// Config returns the configuration the service was built with
func (s *Service) Config() *config.Config {
	return s.cfg
}

// HasGenerator reports whether Answer can be used
func (s *Service) HasGenerator() bool {
	return s.generator != nil
}

// Initialized reports whether Ingest or Load has completed
func (s *Service) Initialized() bool {
	return s.initialized.Load()
}

// Ingest indexes every corpus file in dir (the configured corpus when empty),
// pruning missing documents when the configuration asks for it.
func (s *Service) Ingest(ctx context.Context, dir string) (*IngestReport, error) {
	return s.IngestWithOptions(ctx, dir, IngestOptions{Prune: s.cfg.PruneMissing})
}

// IngestWithOptions is Ingest with explicit options
func (s *Service) IngestWithOptions(ctx context.Context, dir string, opts IngestOptions) (*IngestReport, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if dir == "" {
		dir = s.cfg.CorpusDir
	}
	start := time.Now()
	report := &IngestReport{
		RunID:     uuid.NewString(),
		Directory: dir,
		StartedAt: start,
	}
	logger := s.logger.With("run", report.RunID)
	logger.Info("ingest started", "dir", dir, "prune", opts.Prune)

	docs, err := core.LoadDocuments(dir, logger)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seen[doc.Name] = true

		texts, err := s.segmenter.Segment(doc.Text)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", doc.Name, err)
		}
		_, fresh, err := s.embedder.EmbedWithCache(ctx, doc.Name, texts)
		if err != nil {
			return nil, fmt.Errorf("embed %s: %w", doc.Name, err)
		}

		report.Documents++
		report.Chunks += len(texts)
		if fresh {
			report.Fresh++
			report.Embedded += len(texts)
		} else {
			report.Cached++
		}
		logger.Debug("document processed", "doc", doc.Name, "chunks", len(texts), "fresh", fresh)
	}

	if opts.Prune {
		pruned, err := s.prune(ctx, seen)
		if err != nil {
			return nil, err
		}
		report.Pruned = pruned
	}

	rebuild, err := s.rebuild(ctx)
	if err != nil {
		return nil, err
	}
	report.Indexed = rebuild.Indexed
	report.Stale = rebuild.Stale
	report.Duration = time.Since(start)
	s.initialized.Store(true)

	logger.Info("ingest finished",
		"documents", report.Documents,
		"chunks", report.Chunks,
		"fresh", report.Fresh,
		"cached", report.Cached,
		"pruned", len(report.Pruned),
		"indexed", report.Indexed,
		"duration", report.Duration.Round(time.Millisecond))
	return report, nil
}

// prune deletes cached documents not present in seen
func (s *Service) prune(ctx context.Context, seen map[string]bool) ([]string, error) {
	cached, err := s.cache.Documents(ctx)
	if err != nil {
		return nil, err
	}

	var pruned []string
	for _, d := range cached {
		if seen[d.Name] {
			continue
		}
		if _, err := s.cache.Delete(ctx, d.Name); err != nil {
			return nil, fmt.Errorf("prune %s: %w", d.Name, err)
		}
		s.logger.Info("pruned document missing from corpus", "doc", d.Name)
		pruned = append(pruned, d.Name)
	}
	return pruned, nil
}

// rebuild reloads the index from the cache and persists it. Callers hold writeMu.
func (s *Service) rebuild(ctx context.Context) (index.RebuildReport, error) {
	vectors, err := s.cache.AllVectors(ctx)
	if err != nil {
		return index.RebuildReport{}, err
	}
	metadata, err := s.cache.AllMetadata(ctx)
	if err != nil {
		return index.RebuildReport{}, err
	}

	report, err := s.index.RebuildFrom(vectors, metadata)
	if err != nil {
		return index.RebuildReport{}, fmt.Errorf("rebuild index: %w", err)
	}
	if err := s.persist(); err != nil {
		return index.RebuildReport{}, err
	}
	return report, nil
}

func (s *Service) persist() error {
	if s.cfg.IndexPath == "" {
		return nil
	}
	return s.index.Persist(s.cfg.IndexPath)
}

// Query returns the k nearest chunks to text. k <= 0 uses the configured top-k.
func (s *Service) Query(ctx context.Context, text string, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		k = s.cfg.TopK
	}
	if !s.initialized.Load() || s.index.Stats().Vectors == 0 {
		return []models.SearchResult{}, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.index.Search(vectors[0], k)
}

// AssembleContext builds the full prompt with the context bounded to budget tokens
func (s *Service) AssembleContext(query string, results []models.SearchResult, budget int) string {
	return s.hydrator.Hydrate(query, results, budget)
}

// BuildPrompt is AssembleContext with the configured context budget
func (s *Service) BuildPrompt(query string, results []models.SearchResult) string {
	return s.AssembleContext(query, results, s.cfg.MaxContextTokens)
}

// Answer retrieves context for question and asks the generator
func (s *Service) Answer(ctx context.Context, question string, k int) (*Answer, error) {
	if s.generator == nil {
		return nil, models.ErrGeneratorUnavailable
	}

	results, err := s.Query(ctx, question, k)
	if err != nil {
		return nil, err
	}
	prompt := s.BuildPrompt(question, results)

	gen, err := s.generator.Generate(ctx, prompt, s.cfg.LLMMaxTokens, s.cfg.LLMTemperature)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	s.logger.Debug("answered", "results", len(results),
		"prompt_tokens", gen.PromptTokens, "completion_tokens", gen.CompletionTokens)

	return &Answer{
		Question:   question,
		Prompt:     prompt,
		Results:    results,
		Generation: gen,
	}, nil
}

// Load restores the persisted index and rebuilds it from the cache unless
// the restored entries match the cache rows one for one.
func (s *Service) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.cfg.IndexPath != "" {
		if err := s.index.Restore(s.cfg.IndexPath); err != nil {
			return err
		}
	}

	metadata, err := s.cache.AllMetadata(ctx)
	if err != nil {
		return err
	}
	if entries := s.index.Entries(); !inSync(entries, metadata) {
		s.logger.Info("index out of date, rebuilding from cache", "index", len(entries), "cache", len(metadata))
		if _, err := s.rebuild(ctx); err != nil {
			return err
		}
	}

	s.initialized.Store(true)
	return nil
}

// inSync reports whether index entries and cache rows agree in order, key and text
func inSync(entries, rows []models.ChunkRecord) bool {
	if len(entries) != len(rows) {
		return false
	}
	for i, e := range entries {
		r := rows[i]
		if e.Key != r.Key || e.DocName != r.DocName || e.ChunkIndex != r.ChunkIndex || e.Text != r.Text {
			return false
		}
	}
	return true
}

// RemoveDocument deletes doc from the cache and rebuilds the index
func (s *Service) RemoveDocument(ctx context.Context, doc string) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	removed, err := s.cache.Delete(ctx, doc)
	if err != nil {
		return 0, err
	}
	if _, err := s.rebuild(ctx); err != nil {
		return removed, err
	}
	s.logger.Info("document removed", "doc", doc, "chunks", removed)
	return removed, nil
}

// Reset clears the cache and the index
func (s *Service) Reset(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.cache.Clear(ctx); err != nil {
		return err
	}
	s.index.Reset()
	if err := s.persist(); err != nil {
		return err
	}
	s.logger.Info("cache and index cleared")
	return nil
}

// Stats reports index and cache sizes
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	rows, err := s.cache.Count(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := s.cache.Documents(ctx)
	if err != nil {
		return nil, err
	}

	return &Stats{
		Index:          s.index.Stats(),
		CacheRows:      rows,
		Documents:      len(docs),
		EmbeddingModel: s.embedder.ModelName(),
		Generator:      s.generator != nil,
		Initialized:    s.initialized.Load(),
	}, nil
}

// Documents lists cached documents
func (s *Service) Documents(ctx context.Context) ([]models.DocumentSummary, error) {
	return s.cache.Documents(ctx)
}

// Lookup returns the cache row at a 0-based insertion ordinal, or nil
func (s *Service) Lookup(ctx context.Context, ordinal int) (*models.ChunkRecord, error) {
	return s.cache.FindByOrdinal(ctx, ordinal)
}

type exporter interface {
	Export(ctx context.Context, includeVectors bool) (*sqlite.ExportData, error)
	ExportToFile(ctx context.Context, outputPath, format string, includeVectors bool) error
}

func (s *Service) exporter() (exporter, error) {
	e, ok := s.cache.(exporter)
	if !ok {
		return nil, fmt.Errorf("%w: cache does not support export", models.ErrConfiguration)
	}
	return e, nil
}

// Export snapshots the cache grouped by document
func (s *Service) Export(ctx context.Context, includeVectors bool) (*sqlite.ExportData, error) {
	e, err := s.exporter()
	if err != nil {
		return nil, err
	}
	return e.Export(ctx, includeVectors)
}

// ExportToFile writes the cache snapshot to path as "yaml" or "json"
func (s *Service) ExportToFile(ctx context.Context, path, format string, includeVectors bool) error {
	e, err := s.exporter()
	if err != nil {
		return err
	}
	return e.ExportToFile(ctx, path, format, includeVectors)
}

// OnClose registers fn to run from Close
func (s *Service) OnClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close releases resources registered with OnClose in reverse order
func (s *Service) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
