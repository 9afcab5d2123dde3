// ABOUTME: MCP command starts the Model Context Protocol server
// ABOUTME: Lets LLM agents search documents and build prompts via stdio
package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harper/docrag/internal/mcp"
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs docrag as an MCP (Model Context Protocol) server, letting LLM
agents like Claude search the indexed documents, build grounded prompts
and trigger ingestion via stdio.

Tool calls run on a bounded worker pool; on SIGINT or SIGTERM the
server waits for pending calls before closing the cache.`,
		RunE: runMCP,
		Example: `  # Start MCP server (typically called by Claude Desktop)
  docrag mcp

  # Configure in claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "docrag": {
  #       "command": "docrag",
  #       "args": ["mcp"]
  #     }
  #   }
  # }`,
	}

	return cmd
}

// runMCP starts the MCP server
func runMCP(cmd *cobra.Command, args []string) error {
	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, logger, err := openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("error closing embedding cache", "err", err)
		}
	}()

	if !svc.HasGenerator() {
		logger.Warn("OPENAI_API_KEY not set: ask_documents is disabled, build_prompt still works")
	}

	return mcp.Serve(ctx, svc, mcp.ServeOptions{
		Version: versionInfo.Version,
		Workers: svc.Config().Workers,
		In:      os.Stdin,
		Out:     os.Stdout,
		Logger:  logger,
	})
}
