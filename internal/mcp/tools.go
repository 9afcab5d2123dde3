// ABOUTME: MCP tool definitions and registration for the docrag server
// ABOUTME: Defines JSON schemas for the 5 retrieval tools
package mcp

import (
	"github.com/charmbracelet/log"
	"github.com/harper/docrag/internal/logging"
	"github.com/harper/docrag/internal/rag"
	"github.com/harper/docrag/internal/worker"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// RegisterTools registers all MCP tools with the server
func RegisterTools(server *mcpserver.MCPServer, service *rag.Service, pool *worker.Pool, logger *log.Logger) *Handlers {
	handlers := NewHandlers(service, pool, logger)

	// 1. search_documents - nearest chunks for a query
	server.AddTool(mcp.Tool{
		Name:        "search_documents",
		Description: "Search the indexed document corpus and return the most similar chunks with their sources and similarity scores.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language search query",
				},
				"k": map[string]interface{}{
					"type":        "number",
					"description": "Number of chunks to return (default: configured top-k)",
				},
			},
			Required: []string{"query"},
		},
	}, handlers.SearchDocuments)

	// 2. build_prompt - grounded prompt without calling a model
	server.AddTool(mcp.Tool{
		Name:        "build_prompt",
		Description: "Retrieve context for a question and return the assembled, citation-ready prompt without calling a language model.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Question to build the prompt for",
				},
				"k": map[string]interface{}{
					"type":        "number",
					"description": "Number of chunks to include (default: configured top-k)",
				},
			},
			Required: []string{"query"},
		},
	}, handlers.BuildPrompt)

	// 3. ask_documents - retrieval plus generation
	server.AddTool(mcp.Tool{
		Name:        "ask_documents",
		Description: "Answer a question from the document corpus using the configured language model. Returns the answer with its sources.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Question to answer",
				},
				"k": map[string]interface{}{
					"type":        "number",
					"description": "Number of chunks to retrieve (default: configured top-k)",
				},
			},
			Required: []string{"question"},
		},
	}, handlers.AskDocuments)

	// 4. ingest_corpus - (re)index a directory
	server.AddTool(mcp.Tool{
		Name:        "ingest_corpus",
		Description: "Ingest .md and .txt files from a directory into the embedding cache and rebuild the index. Unchanged documents reuse cached embeddings.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"directory": map[string]interface{}{
					"type":        "string",
					"description": "Corpus directory (default: configured corpus directory)",
				},
				"prune": map[string]interface{}{
					"type":        "boolean",
					"description": "Remove cached documents that are no longer in the directory",
					"default":     false,
				},
			},
		},
	}, handlers.IngestCorpus)

	// 5. index_stats - sizes and configuration
	server.AddTool(mcp.Tool{
		Name:        "index_stats",
		Description: "Report index backend, vector count, dimension, cache rows and document count.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, handlers.IndexStats)

	return handlers
}

// NewHandlers creates tool handlers that run their work on pool
func NewHandlers(service *rag.Service, pool *worker.Pool, logger *log.Logger) *Handlers {
	return &Handlers{
		service: service,
		pool:    pool,
		logger:  logging.Component(logger, "mcp"),
	}
}
