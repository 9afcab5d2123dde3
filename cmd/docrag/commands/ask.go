// ABOUTME: CLI command to answer a question from the corpus
// ABOUTME: Retrieves context, calls the configured language model and prints answer with sources
package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/docrag/internal/core"
	"github.com/harper/docrag/internal/models"
)

var (
	askK int
)

// NewAskCmd creates ask command
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the documents",
		Long: `Answer a question using the indexed documents as context.

Needs an OpenAI-compatible endpoint: set OPENAI_API_KEY, or
OPENAI_BASE_URL for a local server such as Ollama. Use the prompt
command to see the context without calling a model.

Examples:
  docrag ask "how does a select statement behave"
  docrag ask --k 5 "what is stored in sqlite"`,
		Args: cobra.ExactArgs(1),
		RunE: runAsk,
	}

	cmd.Flags().IntVar(&askK, "k", 0, "Number of chunks to retrieve (default: configured top-k)")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	if askK < 0 {
		return validatePositiveInt(askK, "k")
	}
	ctx := cmd.Context()

	svc, _, err := openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	answer, err := svc.Answer(ctx, args[0], askK)
	if errors.Is(err, models.ErrGeneratorUnavailable) {
		return fmt.Errorf("%w: set OPENAI_API_KEY or OPENAI_BASE_URL, or use 'docrag prompt'", err)
	}
	if err != nil {
		return err
	}

	if jsonOutput() {
		return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
			"question": answer.Question,
			"answer":   answer.Generation.Text,
			"model":    answer.Generation.Model,
			"sources":  core.Sources(answer.Results),
		})
	}

	fmt.Fprintln(cmd.OutOrStdout(), answer.Generation.Text)
	if !quiet && len(answer.Results) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "\nSources:\n%s\n", core.FormatSources(answer.Results))
	}
	return nil
}
