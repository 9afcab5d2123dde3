// ABOUTME: Export functionality for the embedding cache
// ABOUTME: Supports YAML and JSON export of documents, chunks and optionally vectors
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ExportData represents the complete exportable data structure
type ExportData struct {
	Version    string           `yaml:"version" json:"version"`
	ExportedAt string           `yaml:"exported_at" json:"exported_at"`
	Tool       string           `yaml:"tool" json:"tool"`
	Model      string           `yaml:"embedding_model,omitempty" json:"embedding_model,omitempty"`
	Documents  []ExportDocument `yaml:"documents" json:"documents"`
}

// ExportDocument represents one cached document for export
type ExportDocument struct {
	Name        string        `yaml:"name" json:"name"`
	Fingerprint string        `yaml:"fingerprint" json:"fingerprint"`
	Chunks      []ExportChunk `yaml:"chunks" json:"chunks"`
}

// ExportChunk represents a cached chunk for export
type ExportChunk struct {
	Key       string    `yaml:"key" json:"key"`
	Index     int       `yaml:"index" json:"index"`
	Text      string    `yaml:"text" json:"text"`
	CreatedAt string    `yaml:"created_at" json:"created_at"`
	Vector    []float32 `yaml:"vector,omitempty,flow" json:"vector,omitempty"`
}

// Export collects every cached document grouped by name
func (c *EmbeddingCache) Export(ctx context.Context, includeVectors bool) (*ExportData, error) {
	data := &ExportData{
		Version:    "1.0",
		ExportedAt: time.Now().Format(time.RFC3339),
		Tool:       "docrag",
		Documents:  []ExportDocument{},
	}

	model, err := c.Model(ctx)
	if err != nil {
		return nil, err
	}
	data.Model = model

	summaries, err := c.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	records, err := c.AllMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}

	var vectors map[string][]float32
	if includeVectors {
		all, err := c.AllVectors(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list vectors: %w", err)
		}
		vectors = make(map[string][]float32, len(all))
		for _, kv := range all {
			vectors[kv.Key] = kv.Vector
		}
	}

	byDoc := make(map[string][]ExportChunk)
	for _, r := range records {
		chunk := ExportChunk{
			Key:       r.Key,
			Index:     r.ChunkIndex,
			Text:      r.Text,
			CreatedAt: r.CreatedAt.Format(time.RFC3339),
		}
		if vectors != nil {
			chunk.Vector = vectors[r.Key]
		}
		byDoc[r.DocName] = append(byDoc[r.DocName], chunk)
	}

	for _, s := range summaries {
		chunks := byDoc[s.Name]
		// Insertion order usually matches chunk order; enforce it
		ordered := make([]ExportChunk, len(chunks))
		for _, ch := range chunks {
			if ch.Index >= 0 && ch.Index < len(ordered) {
				ordered[ch.Index] = ch
			}
		}
		data.Documents = append(data.Documents, ExportDocument{
			Name:        s.Name,
			Fingerprint: s.Fingerprint,
			Chunks:      ordered,
		})
	}

	return data, nil
}

// WriteExport encodes data to w as "yaml" or "json"
func WriteExport(w io.Writer, data *ExportData, format string) error {
	switch format {
	case "", "yaml", "yml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(data); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return encoder.Close()
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(data); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// ExportToFile writes the cache export to outputPath
func (c *EmbeddingCache) ExportToFile(ctx context.Context, outputPath, format string, includeVectors bool) error {
	data, err := c.Export(ctx, includeVectors)
	if err != nil {
		return err
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(outputPath) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return WriteExport(file, data, format)
}
