// ABOUTME: Builds a ready Service from configuration
// ABOUTME: Opens the SQLite cache, picks the embedding provider, index backend and generator
package rag

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/harper/docrag/internal/config"
	"github.com/harper/docrag/internal/core"
	"github.com/harper/docrag/internal/embedding"
	"github.com/harper/docrag/internal/index"
	"github.com/harper/docrag/internal/llm"
	"github.com/harper/docrag/internal/logging"
	"github.com/harper/docrag/internal/models"
	"github.com/harper/docrag/internal/storage/sqlite"
	openai "github.com/sashabaranov/go-openai"
)

// MemoryCachePath opens the cache in memory instead of on disk
const MemoryCachePath = ":memory:"

// Open wires every component from cfg. The returned service owns the cache
// database; call Close when done. Load is not called.
func Open(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		db  *sqlite.DB
		err error
	)
	if cfg.CachePath == MemoryCachePath {
		db, err = sqlite.OpenInMemory()
	} else {
		db, err = sqlite.Open(cfg.CachePath)
	}
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}

	svc, err := build(ctx, cfg, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	svc.OnClose(db.Close)
	return svc, nil
}

func build(ctx context.Context, cfg *config.Config, db *sqlite.DB, logger *log.Logger) (*Service, error) {
	provider, generator, err := providers(cfg, logger)
	if err != nil {
		return nil, err
	}

	cache := sqlite.NewEmbeddingCache(db)
	if err := cache.BindModel(ctx, provider.ModelName(), provider.Dimension()); err != nil {
		return nil, err
	}
	logging.Component(logger, "rag").Debug("embedding cache ready",
		"path", db.Path(), "model", provider.ModelName(), "dimension", provider.Dimension())

	segmenter, err := core.NewSegmenter(cfg.ChunkSizeTokens, cfg.ChunkOverlapTokens, cfg.CharsPerToken)
	if err != nil {
		return nil, err
	}

	idx, err := index.New(cfg.IndexBackend, logger)
	if err != nil {
		return nil, err
	}

	return New(Options{
		Config:    cfg,
		Segmenter: segmenter,
		Embedder:  embedding.New(provider, cache, logger),
		Cache:     cache,
		Index:     idx,
		Generator: generator,
		Logger:    logger,
	})
}

// providers returns the embedding provider and, when an endpoint is configured, the generator
func providers(cfg *config.Config, logger *log.Logger) (embedding.Provider, Generator, error) {
	var client *llm.OpenAIClient
	if cfg.HasGenerator() {
		var err error
		client, err = llm.NewOpenAIClientWithConfig(&llm.ClientConfig{
			APIKey:             cfg.OpenAIKey,
			BaseURL:            cfg.OpenAIBaseURL,
			ChatModel:          cfg.ChatModel,
			EmbeddingModel:     openai.EmbeddingModel(cfg.EmbeddingModel),
			EmbeddingDimension: cfg.EmbeddingDimension,
			BatchSize:          cfg.EmbedBatchSize,
			Concurrency:        cfg.EmbedConcurrency,
			RequestsPerSecond:  cfg.EmbedRateLimit,
			Timeout:            cfg.Timeout,
			MaxRetries:         cfg.MaxRetries,
			RetryDelay:         cfg.RetryDelay,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
	}

	var generator Generator
	if client != nil {
		generator = client
	}

	switch cfg.EmbeddingProvider {
	case config.ProviderOpenAI:
		if client == nil {
			return nil, nil, fmt.Errorf("%w: openai embedding provider has no endpoint configured", models.ErrConfiguration)
		}
		return client, generator, nil
	default:
		return embedding.NewHashProvider(cfg.EmbeddingDimension), generator, nil
	}
}
