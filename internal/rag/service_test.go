// ABOUTME: Tests for the retrieval service end to end over a temp corpus
// ABOUTME: Uses the hash embedder, in-memory or temp-file SQLite and a fake generator
package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/harper/docrag/internal/config"
	"github.com/harper/docrag/internal/core"
	"github.com/harper/docrag/internal/embedding"
	"github.com/harper/docrag/internal/index"
	"github.com/harper/docrag/internal/models"
	"github.com/harper/docrag/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	docAlpha = "Go channels coordinate goroutines.\n\nA select statement waits on several channel operations."
	docBeta  = "SQLite keeps the embedding cache in a single file.\n\nWAL mode allows readers during writes."
	docGamma = "Cosine similarity over unit vectors equals the inner product."
)

// fakeGenerator records prompts and answers with a fixed text
type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, maxTokens int, temperature float64) (*models.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.prompts = append(f.prompts, prompt)
	return &models.Generation{Text: "Channels.", Model: "fake", PromptTokens: len(prompt) / 4, CompletionTokens: 2}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.CorpusDir = filepath.Join(dir, "corpus")
	cfg.CachePath = filepath.Join(dir, "embeddings.db")
	cfg.IndexPath = filepath.Join(dir, "index.bin")
	cfg.EmbeddingProvider = config.ProviderHash
	cfg.EmbeddingDimension = 128
	cfg.EmbeddingModel = "hash-128"
	require.NoError(t, os.MkdirAll(cfg.CorpusDir, 0755))
	return cfg
}

func writeDoc(t *testing.T, cfg *config.Config, name, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.CorpusDir, name), []byte(text), 0644))
}

func writeCorpus(t *testing.T, cfg *config.Config) {
	t.Helper()
	writeDoc(t, cfg, "alpha.md", docAlpha)
	writeDoc(t, cfg, "beta.txt", docBeta)
	writeDoc(t, cfg, "gamma.md", docGamma)
}

// newService builds a Service over the given config with an optional generator
func newService(t *testing.T, cfg *config.Config, gen Generator) *Service {
	t.Helper()
	db, err := sqlite.Open(cfg.CachePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cache := sqlite.NewEmbeddingCache(db)
	provider := embedding.NewHashProvider(cfg.EmbeddingDimension)
	require.NoError(t, cache.BindModel(context.Background(), provider.ModelName(), provider.Dimension()))

	seg, err := core.NewSegmenter(cfg.ChunkSizeTokens, cfg.ChunkOverlapTokens, cfg.CharsPerToken)
	require.NoError(t, err)
	idx, err := index.New(cfg.IndexBackend, nil)
	require.NoError(t, err)

	opts := Options{
		Config:    cfg,
		Segmenter: seg,
		Embedder:  embedding.New(provider, cache, nil),
		Cache:     cache,
		Index:     idx,
	}
	if gen != nil {
		opts.Generator = gen
	}
	svc, err := New(opts)
	require.NoError(t, err)
	return svc
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestIngest_IndexesCorpus(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg)
	svc := newService(t, cfg, nil)
	ctx := context.Background()

	report, err := svc.Ingest(ctx, "")
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, cfg.CorpusDir, report.Directory)
	assert.Equal(t, 3, report.Documents)
	assert.Equal(t, 3, report.Chunks, "each document fits one chunk")
	assert.Equal(t, 3, report.Fresh)
	assert.Zero(t, report.Cached)
	assert.Equal(t, 3, report.Embedded)
	assert.Equal(t, 3, report.Indexed)
	assert.Empty(t, report.Stale)
	assert.True(t, svc.Initialized())

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.CacheRows)
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 3, stats.Index.Vectors)
	assert.Equal(t, 128, stats.Index.Dimension)
	assert.Equal(t, "hash-128", stats.EmbeddingModel)
	assert.False(t, stats.Generator)

	_, err = os.Stat(cfg.IndexPath)
	assert.NoError(t, err, "index persisted after ingest")
}

func TestIngest_Idempotent(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg)
	svc := newService(t, cfg, nil)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "")
	require.NoError(t, err)
	before, err := svc.Stats(ctx)
	require.NoError(t, err)
	first, err := svc.Query(ctx, docAlpha, 3)
	require.NoError(t, err)

	report, err := svc.Ingest(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, report.Fresh)
	assert.Equal(t, 3, report.Cached)
	assert.Zero(t, report.Embedded)

	after, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.CacheRows, after.CacheRows)
	assert.Equal(t, before.Index, after.Index)

	second, err := svc.Query(ctx, docAlpha, 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestIngest_ChangedDocumentIsReembedded(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg)
	svc := newService(t, cfg, nil)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "")
	require.NoError(t, err)

	updated := "Buffered channels decouple senders from receivers."
	writeDoc(t, cfg, "alpha.md", updated)

	report, err := svc.Ingest(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fresh)
	assert.Equal(t, 2, report.Cached)

	results, err := svc.Query(ctx, updated, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alpha.md", results[0].DocName)
	assert.Equal(t, updated, results[0].Text)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.CacheRows, "old alpha rows replaced, not accumulated")
}

func TestIngest_Prune(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg)
	svc := newService(t, cfg, nil)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "")
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(cfg.CorpusDir, "gamma.md")))

	// Default keeps documents from earlier runs
	report, err := svc.Ingest(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, report.Pruned)
	assert.Equal(t, 3, report.Indexed)

	report, err = svc.IngestWithOptions(ctx, "", IngestOptions{Prune: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"gamma.md"}, report.Pruned)
	assert.Equal(t, 2, report.Indexed)

	results, err := svc.Query(ctx, docGamma, 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "gamma.md", r.DocName)
	}
}

func TestIngest_MissingOrEmptyCorpus(t *testing.T) {
	cfg := testConfig(t)
	svc := newService(t, cfg, nil)
	ctx := context.Background()

	report, err := svc.Ingest(ctx, filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Zero(t, report.Documents)
	assert.Zero(t, report.Indexed)

	report, err = svc.Ingest(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, report.Documents)

	results, err := svc.Query(ctx, "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIngest_Cancelled(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg)
	svc := newService(t, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Ingest(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQuery(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg)
	svc := newService(t, cfg, nil)
	ctx := context.Background()

	results, err := svc.Query(ctx, docBeta, 2)
	require.NoError(t, err)
	assert.Empty(t, results, "not initialised yet")

	_, err = svc.Ingest(ctx, "")
	require.NoError(t, err)

	results, err = svc.Query(ctx, docBeta, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "beta.txt", results[0].DocName)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	// k <= 0 falls back to the configured top-k
	cfg.TopK = 1
	results, err = svc.Query(ctx, docBeta, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestBuildPrompt(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg)
	svc := newService(t, cfg, nil)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "")
	require.NoError(t, err)
	results, err := svc.Query(ctx, "How do channels coordinate goroutines?", 2)
	require.NoError(t, err)

	prompt := svc.BuildPrompt("How do channels coordinate goroutines?", results)
	assert.Contains(t, prompt, "## Context:")
	assert.Contains(t, prompt, "## Sources:")
	assert.Contains(t, prompt, "## Question:\n\nHow do channels coordinate goroutines?")
	assert.True(t, strings.HasSuffix(prompt, "## Answer:\n"))
	assert.Contains(t, prompt, results[0].Text)

	// A tiny budget truncates the context section
	small := svc.AssembleContext("q", results, 5)
	contextSection := small[:strings.Index(small, "## Sources:")]
	assert.Contains(t, contextSection, core.Ellipsis)
	assert.NotContains(t, contextSection, results[0].Text)
}

func TestAnswer(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg)
	ctx := context.Background()

	t.Run("no generator", func(t *testing.T) {
		svc := newService(t, cfg, nil)
		_, err := svc.Answer(ctx, "question", 2)
		assert.ErrorIs(t, err, models.ErrGeneratorUnavailable)
	})

	t.Run("with generator", func(t *testing.T) {
		gen := &fakeGenerator{}
		svc := newService(t, testConfigWithCorpus(t), gen)
		require.True(t, svc.HasGenerator())
		_, err := svc.Ingest(ctx, "")
		require.NoError(t, err)

		answer, err := svc.Answer(ctx, docAlpha, 2)
		require.NoError(t, err)
		assert.Equal(t, docAlpha, answer.Question)
		assert.Equal(t, "Channels.", answer.Generation.Text)
		require.Len(t, answer.Results, 2)
		assert.Equal(t, "alpha.md", answer.Results[0].DocName)
		require.Len(t, gen.prompts, 1)
		assert.Equal(t, answer.Prompt, gen.prompts[0])
	})

	t.Run("no results still prompts", func(t *testing.T) {
		gen := &fakeGenerator{}
		svc := newService(t, testConfig(t), gen)
		answer, err := svc.Answer(ctx, "unknown", 2)
		require.NoError(t, err)
		assert.Empty(t, answer.Results)
		assert.Contains(t, answer.Prompt, "I don't know")
	})

	t.Run("generator failure", func(t *testing.T) {
		gen := &fakeGenerator{err: errors.New("quota")}
		svc := newService(t, testConfig(t), gen)
		_, err := svc.Answer(ctx, "q", 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "quota")
	})
}

func testConfigWithCorpus(t *testing.T) *config.Config {
	cfg := testConfig(t)
	writeCorpus(t, cfg)
	return cfg
}

func TestLoad_ColdStart(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg)
	ctx := context.Background()

	first := newService(t, cfg, nil)
	_, err := first.Ingest(ctx, "")
	require.NoError(t, err)
	want, err := first.Query(ctx, docGamma, 3)
	require.NoError(t, err)

	second := newService(t, cfg, nil)
	assert.False(t, second.Initialized())
	require.NoError(t, second.Load(ctx))
	assert.True(t, second.Initialized())

	got, err := second.Query(ctx, docGamma, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoad_RebuildsFromCacheWhenIndexIsBad(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg)
	ctx := context.Background()

	first := newService(t, cfg, nil)
	_, err := first.Ingest(ctx, "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(cfg.IndexPath, []byte("garbage"), 0644))

	second := newService(t, cfg, nil)
	require.NoError(t, second.Load(ctx))

	stats, err := second.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Index.Vectors)

	results, err := second.Query(ctx, docAlpha, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alpha.md", results[0].DocName)
}

func TestLoad_RebuildsWhenCacheChangedWithoutPersist(t *testing.T) {
	cfg := testConfig(t)
	writeDoc(t, cfg, "notes.md", "old text about goroutines")
	ctx := context.Background()

	first := newService(t, cfg, nil)
	_, err := first.Ingest(ctx, "")
	require.NoError(t, err)

	// Same doc and chunk count, committed to the cache but never persisted
	updated := "new text about sqlite"
	_, fresh, err := first.embedder.EmbedWithCache(ctx, "notes.md", []string{updated})
	require.NoError(t, err)
	require.True(t, fresh)

	second := newService(t, cfg, nil)
	require.NoError(t, second.Load(ctx))

	results, err := second.Query(ctx, updated, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, updated, results[0].Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)
}

func TestInSync(t *testing.T) {
	rows := []models.ChunkRecord{
		{Key: "k0", DocName: "a.md", ChunkIndex: 0, Text: "one"},
		{Key: "k1", DocName: "a.md", ChunkIndex: 1, Text: "two"},
	}
	changed := append([]models.ChunkRecord(nil), rows...)
	changed[1].Text = "three"

	assert.True(t, inSync(nil, nil))
	assert.True(t, inSync(rows, rows))
	assert.False(t, inSync(rows[:1], rows))
	assert.False(t, inSync(rows, changed))
	assert.False(t, inSync([]models.ChunkRecord{rows[1], rows[0]}, rows))
}

func TestRemoveDocument(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg)
	svc := newService(t, cfg, nil)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "")
	require.NoError(t, err)

	removed, err := svc.RemoveDocument(ctx, "alpha.md")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	results, err := svc.Query(ctx, docAlpha, 5)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	for _, r := range results {
		assert.NotEqual(t, "alpha.md", r.DocName)
	}

	removed, err = svc.RemoveDocument(ctx, "missing.md")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestReset(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg)
	svc := newService(t, cfg, nil)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "")
	require.NoError(t, err)
	require.NoError(t, svc.Reset(ctx))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.CacheRows)
	assert.Zero(t, stats.Index.Vectors)

	results, err := svc.Query(ctx, docAlpha, 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestLookup(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg)
	svc := newService(t, cfg, nil)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "")
	require.NoError(t, err)

	rec, err := svc.Lookup(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "alpha.md", rec.DocName, "markdown files load first")

	rec, err = svc.Lookup(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDocuments(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg)
	svc := newService(t, cfg, nil)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "")
	require.NoError(t, err)

	docs, err := svc.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	names := []string{docs[0].Name, docs[1].Name, docs[2].Name}
	assert.ElementsMatch(t, []string{"alpha.md", "beta.txt", "gamma.md"}, names)
}

func TestExport(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg)
	svc := newService(t, cfg, nil)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "")
	require.NoError(t, err)

	data, err := svc.Export(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "hash-128", data.Model)
	require.Len(t, data.Documents, 3)
	for _, doc := range data.Documents {
		require.NotEmpty(t, doc.Chunks)
		assert.Nil(t, doc.Chunks[0].Vector)
	}

	data, err = svc.Export(ctx, true)
	require.NoError(t, err)
	assert.Len(t, data.Documents[0].Chunks[0].Vector, 128)
}

func TestExportToFile(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg)
	svc := newService(t, cfg, nil)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "cache.json")
	require.NoError(t, svc.ExportToFile(ctx, path, "json", false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name": "beta.txt"`)
}
