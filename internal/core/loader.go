// ABOUTME: Loads corpus documents (*.md then *.txt) from a directory
// ABOUTME: Missing directories and unreadable files are logged and skipped
package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/harper/docrag/internal/models"
)

// CorpusExtensions lists the file extensions ingested, in load order
var CorpusExtensions = []string{".md", ".txt"}

// IsCorpusFile reports whether path has an ingestible extension
func IsCorpusFile(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range CorpusExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadDocuments reads every corpus file directly inside dir.
// Files are grouped by extension and sorted by name within each group.
func LoadDocuments(dir string, logger *log.Logger) ([]models.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if logger != nil {
				logger.Warn("corpus directory not found", "dir", dir)
			}
			return []models.Document{}, nil
		}
		return nil, fmt.Errorf("failed to read corpus directory: %w", err)
	}

	byExt := make(map[string][]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		byExt[ext] = append(byExt[ext], e.Name())
	}

	var docs []models.Document
	for _, ext := range CorpusExtensions {
		names := byExt[ext]
		sort.Strings(names)
		for _, name := range names {
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				if logger != nil {
					logger.Warn("skipping unreadable document", "doc", name, "err", err)
				}
				continue
			}
			docs = append(docs, models.Document{Name: name, Text: string(data)})
		}
	}

	if logger != nil {
		logger.Debug("loaded corpus", "dir", dir, "documents", len(docs))
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}
