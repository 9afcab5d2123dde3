// ABOUTME: Main entry point for the docrag MCP server with stdio transport
// ABOUTME: Loads config, restores the index and serves the retrieval tools until signalled
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harper/docrag/internal/config"
	"github.com/harper/docrag/internal/logging"
	"github.com/harper/docrag/internal/mcp"
	"github.com/harper/docrag/internal/rag"
	"github.com/joho/godotenv"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists (for API keys)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// stdout carries the protocol, so logs go to stderr
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}
	if !cfg.HasGenerator() {
		logger.Warn("OPENAI_API_KEY not set: ask_documents is disabled, build_prompt still works")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := rag.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("error closing embedding cache", "err", err)
		}
	}()

	if err := svc.Load(ctx); err != nil {
		return fmt.Errorf("failed to load index: %w", err)
	}

	return mcp.Serve(ctx, svc, mcp.ServeOptions{
		Version: version,
		Workers: cfg.Workers,
		In:      os.Stdin,
		Out:     os.Stdout,
		Logger:  logger,
	})
}
