// ABOUTME: Tests for corpus document loading
// ABOUTME: Verifies file filtering, ordering and missing directory handling
package core

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadDocuments_OrderAndFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.md", "bee")
	writeFile(t, dir, "a.txt", "ay text")
	writeFile(t, dir, "a.md", "ay")
	writeFile(t, dir, "image.png", "binary")
	if err := os.Mkdir(filepath.Join(dir, "nested.md"), 0755); err != nil {
		t.Fatal(err)
	}

	docs, err := LoadDocuments(dir, nil)
	if err != nil {
		t.Fatalf("LoadDocuments() error = %v", err)
	}

	want := []string{"a.md", "b.md", "a.txt"}
	if len(docs) != len(want) {
		t.Fatalf("LoadDocuments() = %d docs, want %d", len(docs), len(want))
	}
	for i, name := range want {
		if docs[i].Name != name {
			t.Errorf("docs[%d] = %s, want %s", i, docs[i].Name, name)
		}
	}
	if docs[0].Text != "ay" {
		t.Errorf("docs[0].Text = %q, want ay", docs[0].Text)
	}
}

func TestLoadDocuments_MissingDir(t *testing.T) {
	docs, err := LoadDocuments(filepath.Join(t.TempDir(), "absent"), nil)
	if err != nil {
		t.Fatalf("LoadDocuments() error = %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("LoadDocuments() = %d docs, want 0", len(docs))
	}
}

func TestIsCorpusFile(t *testing.T) {
	tests := map[string]bool{
		"notes.md":      true,
		"README.MD":     false,
		"log.txt":       true,
		"photo.jpg":     false,
		"archive.md.gz": false,
		"noext":         false,
	}
	for path, want := range tests {
		if got := IsCorpusFile(path); got != want {
			t.Errorf("IsCorpusFile(%q) = %v, want %v", path, got, want)
		}
	}
}
