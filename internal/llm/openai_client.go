// ABOUTME: OpenAI-compatible client for batch embeddings and grounded answer generation
// ABOUTME: Batches run concurrently under a rate limit with retry and jittered backoff
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harper/docrag/internal/logging"
	"github.com/harper/docrag/internal/models"
	"github.com/harper/docrag/internal/util"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultChatModel is the default model for chat completions
	DefaultChatModel = "gpt-4o-mini"
	// DefaultEmbeddingModel is the default model for embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimension is the output size of text-embedding-3-small
	DefaultEmbeddingDimension = 1536
)

// ClientConfig holds configuration for the OpenAI client
type ClientConfig struct {
	APIKey             string
	BaseURL            string
	ChatModel          string
	EmbeddingModel     openai.EmbeddingModel
	EmbeddingDimension int
	BatchSize          int
	Concurrency        int
	RequestsPerSecond  float64
	Timeout            time.Duration
	MaxRetries         int
	RetryDelay         time.Duration
}

// DefaultConfig returns the default client configuration
func DefaultConfig(apiKey string) *ClientConfig {
	return &ClientConfig{
		APIKey:             apiKey,
		ChatModel:          DefaultChatModel,
		EmbeddingModel:     DefaultEmbeddingModel,
		EmbeddingDimension: DefaultEmbeddingDimension,
		BatchSize:          32,
		Concurrency:        4,
		Timeout:            30 * time.Second,
		MaxRetries:         3,
		RetryDelay:         2 * time.Second,
	}
}

// OpenAIClient wraps the OpenAI API client with batching, rate limiting and retries
type OpenAIClient struct {
	client         *openai.Client
	chatModel      string
	embeddingModel openai.EmbeddingModel
	dimension      int
	batchSize      int
	concurrency    int
	limiter        *rate.Limiter
	timeout        time.Duration
	maxRetries     int
	retryDelay     time.Duration
	logger         *log.Logger
}

// NewOpenAIClient creates a new OpenAI client with the given API key using default configuration
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	return NewOpenAIClientWithConfig(DefaultConfig(apiKey), nil)
}

// NewOpenAIClientWithConfig creates a new OpenAI client with custom configuration.
// A BaseURL without an API key is allowed for local OpenAI-compatible servers.
func NewOpenAIClientWithConfig(config *ClientConfig, logger *log.Logger) (*OpenAIClient, error) {
	if config.APIKey == "" && config.BaseURL == "" {
		return nil, fmt.Errorf("%w: OpenAI API key or base URL is required", models.ErrConfiguration)
	}

	oaiConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		oaiConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	c := &OpenAIClient{
		client:         openai.NewClientWithConfig(oaiConfig),
		chatModel:      config.ChatModel,
		embeddingModel: config.EmbeddingModel,
		dimension:      config.EmbeddingDimension,
		batchSize:      config.BatchSize,
		concurrency:    config.Concurrency,
		limiter:        rate.NewLimiter(limit, 1),
		timeout:        config.Timeout,
		maxRetries:     config.MaxRetries,
		retryDelay:     config.RetryDelay,
		logger:         logging.Component(logger, "openai"),
	}
	if c.chatModel == "" {
		c.chatModel = DefaultChatModel
	}
	if c.embeddingModel == "" {
		c.embeddingModel = DefaultEmbeddingModel
	}
	if c.dimension <= 0 {
		c.dimension = DefaultEmbeddingDimension
	}
	if c.batchSize <= 0 {
		c.batchSize = 32
	}
	if c.concurrency <= 0 {
		c.concurrency = 1
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	return c, nil
}

// Dimension returns the embedding dimension this client produces
func (c *OpenAIClient) Dimension() int {
	return c.dimension
}

// ModelName returns the embedding model identifier
func (c *OpenAIClient) ModelName() string {
	return string(c.embeddingModel)
}

// ChatModel returns the chat completion model identifier
func (c *OpenAIClient) ChatModel() string {
	return c.chatModel
}

// Embed returns raw embedding vectors for texts, preserving input order
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		g.Go(func() error {
			vectors, err := c.embedBatch(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("batch %d-%d: %w", start, end, err)
			}
			copy(out[start:end], vectors)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OpenAIClient) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	req := openai.EmbeddingRequestStrings{
		Input: batch,
		Model: c.embeddingModel,
	}
	if strings.HasPrefix(string(c.embeddingModel), "text-embedding-3") {
		req.Dimensions = c.dimension
	}

	var vectors [][]float32
	err := c.withRetry(ctx, "embeddings", func(ctx context.Context) error {
		resp, err := c.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Data) != len(batch) {
			return fmt.Errorf("%w: got %d embeddings for %d inputs", models.ErrDimensionMismatch, len(resp.Data), len(batch))
		}

		vectors = make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return fmt.Errorf("embedding index %d out of range", d.Index)
			}
			vectors[d.Index] = d.Embedding
		}
		return nil
	})
	return vectors, err
}

// Generate sends prompt as a single user message and returns the completion
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (*models.Generation, error) {
	var gen *models.Generation

	err := c.withRetry(ctx, "chat", func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.chatModel,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   maxTokens,
			Temperature: float32(temperature),
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("no completion choices returned")
		}

		gen = &models.Generation{
			Text:             strings.TrimSpace(resp.Choices[0].Message.Content),
			Model:            resp.Model,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}
		if gen.Model == "" {
			gen.Model = c.chatModel
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return gen, nil
}

// withRetry runs call with a per-attempt timeout, waiting on the rate limiter first.
// Only rate-limit, server and transport errors are retried.
func (c *OpenAIClient) withRetry(ctx context.Context, op string, call func(ctx context.Context) error) error {
	policy := util.Policy{
		MaxRetries: c.maxRetries,
		BaseDelay:  c.retryDelay,
		Timeout:    c.timeout,
		Retryable:  retryable,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			c.logger.Warn("retrying", "op", op, "attempt", attempt+1, "delay", delay, "err", err)
		},
	}

	err := util.Do(ctx, policy, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return call(ctx)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// retryable reports whether err is worth another attempt
func retryable(err error) bool {
	if errors.Is(err, models.ErrDimensionMismatch) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	// Timeouts and connection failures
	return true
}
