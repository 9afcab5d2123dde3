// ABOUTME: Centralized configuration for the docrag retrieval core
// ABOUTME: Defaults, optional YAML file, then environment variables, then validation
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/harper/docrag/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	// ProviderHash selects the local deterministic embedding model.
	ProviderHash = "hash"
	// ProviderOpenAI selects an OpenAI-compatible embeddings endpoint.
	ProviderOpenAI = "openai"

	// DefaultOpenAIEmbeddingModel is used when the openai provider has no model set
	DefaultOpenAIEmbeddingModel = "text-embedding-3-small"
)

// Config holds all configuration for docrag
type Config struct {
	// Storage
	CorpusDir    string `yaml:"corpus_dir"`
	CachePath    string `yaml:"cache_path"`
	IndexPath    string `yaml:"index_path"`
	IndexBackend string `yaml:"index_backend"`

	// Embeddings
	EmbeddingProvider  string  `yaml:"embedding_provider"`
	EmbeddingModel     string  `yaml:"embedding_model"`
	EmbeddingDimension int     `yaml:"embedding_dimension"`
	EmbedBatchSize     int     `yaml:"embed_batch_size"`
	EmbedConcurrency   int     `yaml:"embed_concurrency"`
	EmbedRateLimit     float64 `yaml:"embed_rate_limit"`

	// Retrieval
	ChunkSizeTokens    int  `yaml:"chunk_size_tokens"`
	ChunkOverlapTokens int  `yaml:"chunk_overlap_tokens"`
	CharsPerToken      int  `yaml:"chars_per_token"`
	TopK               int  `yaml:"top_k"`
	MaxContextTokens   int  `yaml:"max_context_tokens"`
	Workers            int  `yaml:"workers"`
	PruneMissing       bool `yaml:"prune_missing"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// OpenAI settings (embeddings and generation)
	OpenAIKey      string        `yaml:"-"`
	OpenAIBaseURL  string        `yaml:"openai_base_url"`
	ChatModel      string        `yaml:"chat_model"`
	LLMMaxTokens   int           `yaml:"llm_max_tokens"`
	LLMTemperature float64       `yaml:"llm_temperature"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
}

// DefaultDataDir returns the docrag directory under the XDG data home.
func DefaultDataDir() string {
	return filepath.Join(xdg.DataHome, "docrag")
}

// Default returns the built-in configuration before files and env are applied.
func Default() *Config {
	return &Config{
		CorpusDir:          "./data",
		CachePath:          filepath.Join(DefaultDataDir(), "embeddings.db"),
		IndexPath:          filepath.Join(DefaultDataDir(), "index.bin"),
		IndexBackend:       "auto",
		EmbedBatchSize:     32,
		EmbedConcurrency:   4,
		ChunkSizeTokens:    400,
		ChunkOverlapTokens: 100,
		CharsPerToken:      4,
		TopK:               3,
		MaxContextTokens:   3000,
		Workers:            4,
		LogLevel:           "info",
		LogFormat:          "text",
		ChatModel:          "gpt-4o-mini",
		LLMMaxTokens:       256,
		LLMTemperature:     0,
		Timeout:            30 * time.Second,
		MaxRetries:         3,
		RetryDelay:         2 * time.Second,
	}
}

// Load reads configuration from DOCRAG_CONFIG (if set) and environment variables
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("DOCRAG_CONFIG"))
}

// LoadFrom applies the YAML file at path (skipped when empty) and then the environment.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.resolve()

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.CorpusDir = getEnv("DOCRAG_CORPUS_DIR", c.CorpusDir)
	c.CachePath = getEnv("DOCRAG_CACHE_PATH", c.CachePath)
	c.IndexPath = getEnv("DOCRAG_INDEX_PATH", c.IndexPath)
	c.IndexBackend = getEnv("DOCRAG_INDEX_BACKEND", c.IndexBackend)

	c.EmbeddingProvider = getEnv("DOCRAG_EMBEDDING_PROVIDER", c.EmbeddingProvider)
	c.EmbeddingModel = getEnv("DOCRAG_EMBEDDING_MODEL", c.EmbeddingModel)
	c.EmbeddingDimension = getEnvInt("DOCRAG_EMBEDDING_DIMENSION", c.EmbeddingDimension)
	c.EmbedBatchSize = getEnvInt("DOCRAG_EMBED_BATCH_SIZE", c.EmbedBatchSize)
	c.EmbedConcurrency = getEnvInt("DOCRAG_EMBED_CONCURRENCY", c.EmbedConcurrency)
	c.EmbedRateLimit = getEnvFloat("DOCRAG_EMBED_RATE_LIMIT", c.EmbedRateLimit)

	c.ChunkSizeTokens = getEnvInt("DOCRAG_CHUNK_SIZE_TOKENS", c.ChunkSizeTokens)
	c.ChunkOverlapTokens = getEnvInt("DOCRAG_CHUNK_OVERLAP_TOKENS", c.ChunkOverlapTokens)
	c.CharsPerToken = getEnvInt("DOCRAG_CHARS_PER_TOKEN", c.CharsPerToken)
	c.TopK = getEnvInt("DOCRAG_TOP_K", c.TopK)
	c.MaxContextTokens = getEnvInt("DOCRAG_MAX_CONTEXT_TOKENS", c.MaxContextTokens)
	c.Workers = getEnvInt("DOCRAG_WORKERS", c.Workers)
	c.PruneMissing = getEnvBool("DOCRAG_PRUNE_MISSING", c.PruneMissing)

	c.LogLevel = getEnv("DOCRAG_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("DOCRAG_LOG_FORMAT", c.LogFormat)

	c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.ChatModel = getEnv("DOCRAG_CHAT_MODEL", c.ChatModel)
	c.LLMMaxTokens = getEnvInt("LLM_MAX_TOKENS", c.LLMMaxTokens)
	c.LLMTemperature = getEnvFloat("LLM_TEMPERATURE", c.LLMTemperature)
	c.Timeout = getEnvDuration("OPENAI_TIMEOUT", c.Timeout)
	c.MaxRetries = getEnvInt("OPENAI_MAX_RETRIES", c.MaxRetries)
	c.RetryDelay = getEnvDuration("OPENAI_RETRY_DELAY", c.RetryDelay)
}

// resolve fills values that depend on other settings.
func (c *Config) resolve() {
	c.EmbeddingProvider = strings.ToLower(c.EmbeddingProvider)
	if c.EmbeddingProvider == "" {
		c.EmbeddingProvider = ProviderHash
		if c.OpenAIKey != "" {
			c.EmbeddingProvider = ProviderOpenAI
		}
	}

	switch c.EmbeddingProvider {
	case ProviderOpenAI:
		if c.EmbeddingModel == "" {
			c.EmbeddingModel = DefaultOpenAIEmbeddingModel
		}
		if c.EmbeddingDimension == 0 {
			c.EmbeddingDimension = 1536
		}
	case ProviderHash:
		if c.EmbeddingDimension == 0 {
			c.EmbeddingDimension = 384
		}
		if c.EmbeddingModel == "" {
			c.EmbeddingModel = fmt.Sprintf("hash-%d", c.EmbeddingDimension)
		}
	}
}

// Validate checks the configuration and wraps every failure in models.ErrConfiguration
func (c *Config) Validate() error {
	if c.ChunkSizeTokens <= 0 {
		return fmt.Errorf("%w: DOCRAG_CHUNK_SIZE_TOKENS must be positive, got %d", models.ErrConfiguration, c.ChunkSizeTokens)
	}
	if c.ChunkOverlapTokens < 0 || c.ChunkOverlapTokens >= c.ChunkSizeTokens {
		return fmt.Errorf("%w: DOCRAG_CHUNK_OVERLAP_TOKENS must be in [0, %d), got %d",
			models.ErrConfiguration, c.ChunkSizeTokens, c.ChunkOverlapTokens)
	}
	if c.CharsPerToken <= 0 {
		return fmt.Errorf("%w: DOCRAG_CHARS_PER_TOKEN must be positive, got %d", models.ErrConfiguration, c.CharsPerToken)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: DOCRAG_TOP_K must be positive, got %d", models.ErrConfiguration, c.TopK)
	}
	if c.MaxContextTokens <= 0 {
		return fmt.Errorf("%w: DOCRAG_MAX_CONTEXT_TOKENS must be positive, got %d", models.ErrConfiguration, c.MaxContextTokens)
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("%w: DOCRAG_EMBEDDING_DIMENSION must be positive, got %d", models.ErrConfiguration, c.EmbeddingDimension)
	}
	if c.EmbedBatchSize <= 0 || c.EmbedConcurrency <= 0 || c.Workers <= 0 {
		return fmt.Errorf("%w: batch size, embed concurrency and workers must be positive", models.ErrConfiguration)
	}
	if c.EmbedRateLimit < 0 {
		return fmt.Errorf("%w: DOCRAG_EMBED_RATE_LIMIT must be >= 0, got %f", models.ErrConfiguration, c.EmbedRateLimit)
	}

	switch c.IndexBackend {
	case "auto", "flat", "matrix":
	default:
		return fmt.Errorf("%w: DOCRAG_INDEX_BACKEND must be auto, flat or matrix, got %q", models.ErrConfiguration, c.IndexBackend)
	}

	switch c.EmbeddingProvider {
	case ProviderHash:
	case ProviderOpenAI:
		if c.OpenAIKey == "" && c.OpenAIBaseURL == "" {
			return fmt.Errorf("%w: openai embedding provider needs OPENAI_API_KEY or OPENAI_BASE_URL", models.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: DOCRAG_EMBEDDING_PROVIDER must be hash or openai, got %q", models.ErrConfiguration, c.EmbeddingProvider)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: DOCRAG_LOG_LEVEL must be debug, info, warn or error, got %q", models.ErrConfiguration, c.LogLevel)
	}

	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("%w: LLM_TEMPERATURE must be 0-2, got %f", models.ErrConfiguration, c.LLMTemperature)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("%w: OPENAI_MAX_RETRIES must be 0-10, got %d", models.ErrConfiguration, c.MaxRetries)
	}
	return nil
}

// HasGenerator reports whether a chat endpoint is configured.
func (c *Config) HasGenerator() bool {
	return c.OpenAIKey != "" || c.OpenAIBaseURL != ""
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
