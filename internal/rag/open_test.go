// ABOUTME: Tests for wiring a Service from configuration
// ABOUTME: Covers validation, in-memory caches and embedding model binding
package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/harper/docrag/internal/config"
	"github.com/harper/docrag/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_InMemory(t *testing.T) {
	cfg := testConfigWithCorpus(t)
	cfg.CachePath = MemoryCachePath
	cfg.IndexPath = ""
	cfg.IndexBackend = "matrix"
	ctx := context.Background()

	svc, err := Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer svc.Close()

	assert.False(t, svc.HasGenerator())
	require.NoError(t, svc.Load(ctx))

	report, err := svc.Ingest(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Indexed)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "matrix", stats.Index.Backend)
	assert.True(t, stats.Initialized)
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.TopK = 0

	_, err := Open(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestOpen_ModelBinding(t *testing.T) {
	cfg := testConfigWithCorpus(t)
	ctx := context.Background()

	svc, err := Open(ctx, cfg, nil)
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, "")
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	// Same cache file, different dimension
	cfg.EmbeddingDimension = 64
	_, err = Open(ctx, cfg, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDimensionMismatch))

	// Reopening with the original model works and cold-starts from disk
	cfg.EmbeddingDimension = 128
	svc, err = Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer svc.Close()
	require.NoError(t, svc.Load(ctx))

	results, err := svc.Query(ctx, docBeta, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "beta.txt", results[0].DocName)
}

func TestOpen_OpenAIProviderNeedsEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.EmbeddingProvider = config.ProviderOpenAI

	_, err := Open(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}
