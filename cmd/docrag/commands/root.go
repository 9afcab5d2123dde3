// ABOUTME: Root command, global flags and service setup shared by all subcommands
// ABOUTME: Loads .env and config, builds the logger and opens the retrieval service
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/harper/docrag/internal/config"
	"github.com/harper/docrag/internal/logging"
	"github.com/harper/docrag/internal/rag"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	verbose      bool
	quiet        bool
	outputFormat string
	configPath   string
)

// NewRootCmd creates the docrag root command with every subcommand attached
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docrag",
		Short: "Retrieval-augmented answers over a folder of documents",
		Long: `
██████╗  ██████╗  ██████╗██████╗  █████╗  ██████╗
██╔══██╗██╔═══██╗██╔════╝██╔══██╗██╔══██╗██╔════╝
██║  ██║██║   ██║██║     ██████╔╝███████║██║  ███╗
██║  ██║██║   ██║██║     ██╔══██╗██╔══██║██║   ██║
██████╔╝╚██████╔╝╚██████╗██║  ██║██║  ██║╚██████╔╝
╚═════╝  ╚═════╝  ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝ ╚═════╝

Index a directory of .md and .txt files, search it by meaning and
assemble grounded, citation-ready prompts for a language model.

Embeddings are cached in SQLite keyed by document fingerprint, so
re-ingesting an unchanged corpus costs nothing.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch outputFormat {
			case "auto", "text", "json":
				return nil
			default:
				return fmt.Errorf("--format must be auto, text or json, got %q", outputFormat)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (default: $DOCRAG_CONFIG)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log errors and suppress summaries")
	cmd.PersistentFlags().StringVar(&outputFormat, "format", "auto", "Output format: auto, text or json")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(
		NewIngestCmd(),
		NewQueryCmd(),
		NewPromptCmd(),
		NewAskCmd(),
		NewStatsCmd(),
		NewDeleteCmd(),
		NewClearCmd(),
		NewLookupCmd(),
		NewExportCmd(),
		NewWatchCmd(),
		NewMCPCmd(),
		NewVersionCmd(),
	)

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

// jsonOutput reports whether results should be printed as JSON
func jsonOutput() bool {
	return outputFormat == "json"
}

// loadConfig reads .env, then the config file from --config or DOCRAG_CONFIG
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}

// newLogger builds the CLI logger; -v and -q override the configured level
func newLogger(cfg *config.Config, w io.Writer) (*log.Logger, error) {
	level := cfg.LogLevel
	switch {
	case verbose:
		level = "debug"
	case quiet:
		level = "error"
	}
	return logging.New(level, cfg.LogFormat, w)
}

// openService loads config, opens the retrieval service and restores its index.
// The caller must Close the returned service.
func openService(ctx context.Context, cmd *cobra.Command) (*rag.Service, *log.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}

	svc, err := rag.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing service: %w", err)
	}

	if err := svc.Load(ctx); err != nil {
		_ = svc.Close()
		return nil, nil, fmt.Errorf("loading index: %w", err)
	}

	return svc, logger, nil
}
