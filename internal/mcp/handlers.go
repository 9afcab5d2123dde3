// ABOUTME: MCP tool handler implementations for the docrag server
// ABOUTME: Each handler offloads its work to the worker pool and reports failures as tool errors
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/harper/docrag/internal/core"
	"github.com/harper/docrag/internal/models"
	"github.com/harper/docrag/internal/rag"
	"github.com/harper/docrag/internal/worker"
	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	service *rag.Service
	pool    *worker.Pool
	logger  *log.Logger
}

// SearchDocuments handles the search_documents tool
func (h *Handlers) SearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}
	k := request.GetInt("k", 0)

	results, err := worker.Submit(h.pool, ctx, func(ctx context.Context) ([]models.SearchResult, error) {
		return h.service.Query(ctx, query, k)
	}).Wait(ctx)
	if err != nil {
		return h.fail("search", err), nil
	}

	return jsonResult(map[string]interface{}{
		"query":   query,
		"results": results,
		"sources": core.Sources(results),
	})
}

// BuildPrompt handles the build_prompt tool
func (h *Handlers) BuildPrompt(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}
	k := request.GetInt("k", 0)

	prompt, err := worker.Submit(h.pool, ctx, func(ctx context.Context) (string, error) {
		results, err := h.service.Query(ctx, query, k)
		if err != nil {
			return "", err
		}
		return h.service.BuildPrompt(query, results), nil
	}).Wait(ctx)
	if err != nil {
		return h.fail("build prompt", err), nil
	}

	return mcp.NewToolResultText(prompt), nil
}

// AskDocuments handles the ask_documents tool
func (h *Handlers) AskDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question argument is required and must be a string"), nil
	}
	k := request.GetInt("k", 0)

	if !h.service.HasGenerator() {
		return mcp.NewToolResultError("no language model configured: set OPENAI_API_KEY or OPENAI_BASE_URL, or use build_prompt"), nil
	}

	answer, err := worker.Submit(h.pool, ctx, func(ctx context.Context) (*rag.Answer, error) {
		return h.service.Answer(ctx, question, k)
	}).Wait(ctx)
	if err != nil {
		return h.fail("answer", err), nil
	}

	return jsonResult(map[string]interface{}{
		"question": answer.Question,
		"answer":   answer.Generation.Text,
		"model":    answer.Generation.Model,
		"sources":  core.Sources(answer.Results),
		"usage": map[string]int{
			"prompt_tokens":     answer.Generation.PromptTokens,
			"completion_tokens": answer.Generation.CompletionTokens,
		},
	})
}

// IngestCorpus handles the ingest_corpus tool
func (h *Handlers) IngestCorpus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir := request.GetString("directory", "")
	prune := request.GetBool("prune", false)

	report, err := worker.Submit(h.pool, ctx, func(ctx context.Context) (*rag.IngestReport, error) {
		return h.service.IngestWithOptions(ctx, dir, rag.IngestOptions{Prune: prune})
	}).Wait(ctx)
	if err != nil {
		return h.fail("ingest", err), nil
	}

	return jsonResult(report)
}

// IndexStats handles the index_stats tool
func (h *Handlers) IndexStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := h.service.Stats(ctx)
	if err != nil {
		return h.fail("stats", err), nil
	}
	return jsonResult(stats)
}

// Shutdown waits for in-flight tool calls to finish
func (h *Handlers) Shutdown(ctx context.Context) error {
	h.logger.Info("waiting for pending tool calls")
	if err := h.pool.Shutdown(ctx); err != nil {
		return err
	}
	h.logger.Info("all tool calls completed")
	return nil
}

func (h *Handlers) fail(op string, err error) *mcp.CallToolResult {
	h.logger.Error("tool failed", "op", op, "err", err)
	if errors.Is(err, models.ErrGeneratorUnavailable) {
		return mcp.NewToolResultError("no language model configured")
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", op, err))
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
