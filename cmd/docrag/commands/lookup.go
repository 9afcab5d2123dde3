// ABOUTME: CLI command to show the cached chunk at an index ordinal
// ABOUTME: Resolves search result ordinals back to their document and text
package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewLookupCmd creates lookup command
func NewLookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup <ordinal>",
		Short: "Show the chunk at an ordinal",
		Long: `Show the cached chunk at a 0-based ordinal, as reported in the
ordinal field of query results.

Examples:
  docrag lookup 0
  docrag lookup --format json 12`,
		Args: cobra.ExactArgs(1),
		RunE: runLookup,
	}

	return cmd
}

func runLookup(cmd *cobra.Command, args []string) error {
	ordinal, err := strconv.Atoi(args[0])
	if err != nil || ordinal < 0 {
		return fmt.Errorf("ordinal must be a non-negative integer, got %q", args[0])
	}
	ctx := cmd.Context()

	svc, _, err := openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	rec, err := svc.Lookup(ctx, ordinal)
	if err != nil {
		return fmt.Errorf("looking up %d: %w", ordinal, err)
	}
	if rec == nil {
		return fmt.Errorf("no chunk at ordinal %d", ordinal)
	}

	if jsonOutput() {
		return writeJSON(cmd.OutOrStdout(), rec)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Document: %s (chunk %d)\n", rec.DocName, rec.ChunkIndex)
	fmt.Fprintf(out, "Key:      %s\n", rec.Key)
	fmt.Fprintf(out, "Cached:   %s\n\n", formatTime(rec.CreatedAt))
	fmt.Fprintln(out, rec.Text)
	return nil
}
