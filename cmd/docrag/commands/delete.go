// ABOUTME: CLI commands to remove one document or everything from the cache
// ABOUTME: Both rebuild and persist the vector index afterwards
package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	clearConfirm bool
)

// NewDeleteCmd creates delete command
func NewDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <document>",
		Short: "Remove a document from the cache and index",
		Long: `Remove every cached chunk of a document and rebuild the index.

The document name is the file name as listed by 'docrag stats'.

Examples:
  docrag delete notes.md`,
		Args: cobra.ExactArgs(1),
		RunE: runDelete,
	}

	return cmd
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, _, err := openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	removed, err := svc.RemoveDocument(ctx, args[0])
	if err != nil {
		return fmt.Errorf("deleting %s: %w", args[0], err)
	}
	if removed == 0 {
		return fmt.Errorf("document not found: %s", args[0])
	}

	if jsonOutput() {
		return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
			"document": args[0],
			"removed":  removed,
		})
	}
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d chunk(s) of %s\n", removed, args[0])
	}
	return nil
}

// NewClearCmd creates clear command
func NewClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached embeddings and the index",
		Long: `Delete every cached embedding and reset the vector index.

The embedding model binding is kept. Requires --yes.

Examples:
  docrag clear --yes`,
		Args: cobra.NoArgs,
		RunE: runClear,
	}

	cmd.Flags().BoolVar(&clearConfirm, "yes", false, "Confirm deleting everything")

	return cmd
}

func runClear(cmd *cobra.Command, args []string) error {
	if !clearConfirm {
		return errors.New("refusing to clear without --yes")
	}
	ctx := cmd.Context()

	svc, _, err := openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Reset(ctx); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	if !quiet && !jsonOutput() {
		fmt.Fprintln(cmd.OutOrStdout(), "Cache and index cleared")
	}
	return nil
}
