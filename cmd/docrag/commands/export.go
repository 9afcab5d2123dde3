// ABOUTME: CLI command to export the embedding cache
// ABOUTME: Writes documents and chunks, optionally with vectors, as YAML or JSON
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/docrag/internal/storage/sqlite"
)

var (
	exportOutput  string
	exportFormat  string
	exportVectors bool
)

// NewExportCmd creates export command
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the embedding cache",
		Long: `Export every cached document and its chunks as YAML or JSON.

Vectors are left out unless --vectors is given. Without --output the
export is written to stdout.

Examples:
  docrag export
  docrag export --output cache.yaml
  docrag export --format json --vectors --output cache.json`,
		Args: cobra.NoArgs,
		RunE: runExport,
	}

	cmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&exportFormat, "format", "yaml", "Export format: yaml or json")
	cmd.Flags().BoolVar(&exportVectors, "vectors", false, "Include embedding vectors")

	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	switch exportFormat {
	case "yaml", "yml", "json":
	default:
		return fmt.Errorf("--format must be yaml or json, got %q", exportFormat)
	}
	ctx := cmd.Context()

	svc, _, err := openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	if exportOutput != "" {
		if err := svc.ExportToFile(ctx, exportOutput, exportFormat, exportVectors); err != nil {
			return fmt.Errorf("exporting: %w", err)
		}
		if !quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported cache to %s\n", exportOutput)
		}
		return nil
	}

	data, err := svc.Export(ctx, exportVectors)
	if err != nil {
		return fmt.Errorf("exporting: %w", err)
	}
	return sqlite.WriteExport(cmd.OutOrStdout(), data, exportFormat)
}
