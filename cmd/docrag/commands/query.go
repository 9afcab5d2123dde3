// ABOUTME: CLI commands to search the index and to print an assembled prompt
// ABOUTME: query shows ranked chunks; prompt shows the grounded prompt without calling a model
package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harper/docrag/internal/core"
)

var (
	queryK          int
	promptK         int
	promptMaxTokens int
)

// NewQueryCmd creates query command
func NewQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Search the indexed documents",
		Long: `Search the indexed documents by semantic similarity.

Returns the k chunks closest to the query with their cosine score,
source document and chunk position.

Examples:
  docrag query "how do channels work"
  docrag query --k 5 "sqlite WAL mode"
  docrag query --format json "cosine similarity"`,
		Args: cobra.ExactArgs(1),
		RunE: runQuery,
	}

	cmd.Flags().IntVar(&queryK, "k", 0, "Number of chunks to return (default: configured top-k)")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	if queryK < 0 {
		return validatePositiveInt(queryK, "k")
	}
	ctx := cmd.Context()
	query := args[0]

	svc, _, err := openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	results, err := svc.Query(ctx, query, queryK)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	if jsonOutput() {
		return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
			"query":   query,
			"results": results,
			"sources": core.Sources(results),
		})
	}

	if len(results) == 0 {
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "No results for query: %s\n", query)
		}
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SCORE\tDOCUMENT\tCHUNK\tPREVIEW\n")
	fmt.Fprintf(w, "-----\t--------\t-----\t-------\n")
	for _, r := range results {
		fmt.Fprintf(w, "%.3f\t%s\t%d\t%s\n",
			r.Score,
			truncate(r.DocName, 30),
			r.ChunkIndex,
			truncate(oneLine(r.Text), 60))
	}
	w.Flush()

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "\nFound %d result(s)\n", len(results))
	}
	return nil
}

// NewPromptCmd creates prompt command
func NewPromptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt <text>",
		Short: "Print the grounded prompt for a question",
		Long: `Retrieve context for a question and print the assembled prompt.

The prompt contains the retrieved chunks (bounded to the context token
budget), the question and a numbered source list. No language model is
called, so this works without an API key.

Examples:
  docrag prompt "what does WAL mode allow"
  docrag prompt --k 5 --max-tokens 500 "explain select"`,
		Args: cobra.ExactArgs(1),
		RunE: runPrompt,
	}

	cmd.Flags().IntVar(&promptK, "k", 0, "Number of chunks to retrieve (default: configured top-k)")
	cmd.Flags().IntVar(&promptMaxTokens, "max-tokens", 0, "Context budget in tokens (default: configured max context tokens)")

	return cmd
}

func runPrompt(cmd *cobra.Command, args []string) error {
	if promptK < 0 {
		return validatePositiveInt(promptK, "k")
	}
	if promptMaxTokens < 0 {
		return validatePositiveInt(promptMaxTokens, "max-tokens")
	}
	ctx := cmd.Context()
	query := args[0]

	svc, _, err := openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	results, err := svc.Query(ctx, query, promptK)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	budget := promptMaxTokens
	if budget == 0 {
		budget = svc.Config().MaxContextTokens
	}
	prompt := svc.AssembleContext(query, results, budget)

	if jsonOutput() {
		return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
			"query":   query,
			"prompt":  prompt,
			"sources": core.Sources(results),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), prompt)
	return nil
}
