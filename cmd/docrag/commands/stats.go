// ABOUTME: CLI command to show index and cache statistics
// ABOUTME: Prints backend, vector counts, embedding model and cached documents
package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewStatsCmd creates stats command
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index and cache statistics",
		Long: `Show the vector index backend and size, the embedding model bound
to the cache, and the cached documents with their chunk counts.

Examples:
  docrag stats
  docrag stats --format json`,
		Args: cobra.NoArgs,
		RunE: runStats,
	}

	return cmd
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, _, err := openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	stats, err := svc.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading stats: %w", err)
	}
	docs, err := svc.Documents(ctx)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}

	if jsonOutput() {
		return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
			"stats":     stats,
			"documents": docs,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Backend:    %s\n", stats.Index.Backend)
	fmt.Fprintf(out, "Vectors:    %d (dimension %d)\n", stats.Index.Vectors, stats.Index.Dimension)
	fmt.Fprintf(out, "Cache rows: %d\n", stats.CacheRows)
	fmt.Fprintf(out, "Model:      %s\n", stats.EmbeddingModel)
	fmt.Fprintf(out, "Generator:  %t\n", stats.Generator)

	if len(docs) == 0 || quiet {
		return nil
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "DOCUMENT\tCHUNKS\tFINGERPRINT\n")
	fmt.Fprintf(w, "--------\t------\t-----------\n")
	for _, doc := range docs {
		fmt.Fprintf(w, "%s\t%d\t%s\n", truncate(doc.Name, 40), doc.Chunks, truncate(doc.Fingerprint, 12))
	}
	return w.Flush()
}
