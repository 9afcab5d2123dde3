// ABOUTME: CLI command to ingest a corpus directory
// ABOUTME: Embeds new or changed documents, optionally prunes, then rebuilds the index
package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/harper/docrag/internal/rag"
)

var (
	ingestPrune bool
)

// NewIngestCmd creates ingest command
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Index a directory of documents",
		Long: `Index every .md and .txt file in a directory.

Documents whose content has not changed since the last run reuse their
cached embeddings. The vector index is rebuilt from the cache afterwards.
Without a directory argument the configured corpus directory is used.

Examples:
  docrag ingest
  docrag ingest ./docs
  docrag ingest --prune ./docs`,
		Args: cobra.MaximumNArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().BoolVar(&ingestPrune, "prune", false, "Remove cached documents no longer in the directory")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, _, err := openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	dir := svc.Config().CorpusDir
	if len(args) == 1 {
		dir = args[0]
	}

	report, err := svc.IngestWithOptions(ctx, dir, rag.IngestOptions{
		Prune: ingestPrune || svc.Config().PruneMissing,
	})
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", dir, err)
	}

	if jsonOutput() {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	if !quiet {
		printIngestReport(cmd.OutOrStdout(), report)
	}
	return nil
}

func printIngestReport(w io.Writer, report *rag.IngestReport) {
	fmt.Fprintf(w, "Ingested %d document(s) from %s\n", report.Documents, report.Directory)
	fmt.Fprintf(w, "  Chunks:   %d (%d embedded, %d document(s) from cache)\n",
		report.Chunks, report.Embedded, report.Cached)
	if len(report.Pruned) > 0 {
		fmt.Fprintf(w, "  Pruned:   %d document(s)\n", len(report.Pruned))
		for _, name := range report.Pruned {
			fmt.Fprintf(w, "    - %s\n", name)
		}
	}
	if len(report.Stale) > 0 {
		fmt.Fprintf(w, "  Skipped:  %d stale cache row(s)\n", len(report.Stale))
	}
	fmt.Fprintf(w, "  Indexed:  %d vector(s) in %s\n", report.Indexed, report.Duration.Round(time.Millisecond))
}
