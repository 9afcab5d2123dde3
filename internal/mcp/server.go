// ABOUTME: Runs the docrag MCP server over a stdio transport
// ABOUTME: Shared by the docrag mcp command and the standalone server binary
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harper/docrag/internal/logging"
	"github.com/harper/docrag/internal/rag"
	"github.com/harper/docrag/internal/worker"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// ServerName is the name reported to MCP clients
const ServerName = "docrag"

// ServeOptions configures Serve
type ServeOptions struct {
	Version         string
	Workers         int
	ShutdownTimeout time.Duration
	In              io.Reader
	Out             io.Writer
	Logger          *log.Logger
}

// NewServer creates an MCP server with every docrag tool registered
func NewServer(service *rag.Service, pool *worker.Pool, version string, logger *log.Logger) (*mcpserver.MCPServer, *Handlers) {
	server := mcpserver.NewMCPServer(
		ServerName,
		version,
		mcpserver.WithToolCapabilities(true),
	)
	handlers := RegisterTools(server, service, pool, logger)
	return server, handlers
}

// Serve blocks until ctx is cancelled or the transport closes, then waits
// for in-flight tool calls before returning.
func Serve(ctx context.Context, service *rag.Service, opts ServeOptions) error {
	logger := logging.Component(opts.Logger, "mcp")
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}

	pool := worker.NewPool(opts.Workers, opts.Logger)
	server, handlers := NewServer(service, pool, opts.Version, opts.Logger)
	stdio := mcpserver.NewStdioServer(server)

	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- stdio.Listen(listenCtx, opts.In, opts.Out)
	}()
	logger.Info("MCP server listening on stdio", "version", opts.Version, "workers", opts.Workers)

	var err error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining tool calls")
	case listenErr := <-serverErr:
		if listenErr != nil && !errors.Is(listenErr, context.Canceled) {
			err = fmt.Errorf("server error: %w", listenErr)
		}
	}
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer done()
	if shutdownErr := handlers.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("tool calls still running at shutdown", "err", shutdownErr)
		if err == nil {
			err = shutdownErr
		}
	}

	logger.Info("shutdown complete")
	return err
}
