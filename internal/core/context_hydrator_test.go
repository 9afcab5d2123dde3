// ABOUTME: Tests for ContextHydrator prompt assembly
// ABOUTME: Covers truncation at whitespace, sources listing and section order
package core

import (
	"strings"
	"testing"

	"github.com/harper/docrag/internal/models"
)

func sampleResults() []models.SearchResult {
	return []models.SearchResult{
		{Ordinal: 0, Score: 0.91, DocName: "guide.md", ChunkIndex: 0, Text: "Install the tool with the package manager."},
		{Ordinal: 2, Score: 0.5, DocName: "faq.txt", ChunkIndex: 3, Text: "Restart the service after changing config."},
	}
}

func TestTruncateContext(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		maxTokens int
		want      string
	}{
		{"short text unchanged", "hello world", 10, "hello world"},
		{"exact fit unchanged", "abcdefgh", 2, "abcdefgh"},
		{"cuts at last space", "alpha beta gamma delta", 3, "alpha beta..."},
		{"no whitespace hard cut", "abcdefghijklmnop", 2, "abcdefgh..."},
		{"zero budget", "some words", 0, "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateContext(tt.text, tt.maxTokens, 4)
			if got != tt.want {
				t.Errorf("TruncateContext() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncateContext_NeverSplitsWords(t *testing.T) {
	text := strings.Repeat("retrieval augmented generation ", 50)
	words := map[string]bool{"retrieval": true, "augmented": true, "generation": true}

	for budget := 3; budget < 40; budget++ {
		got := TruncateContext(text, budget, 4)
		if !strings.HasSuffix(got, Ellipsis) {
			t.Fatalf("budget %d: missing ellipsis in %q", budget, got)
		}
		body := strings.TrimSuffix(got, Ellipsis)
		if len(body) > budget*4 {
			t.Errorf("budget %d: %d chars exceed limit", budget, len(body))
		}
		for _, w := range strings.Fields(body) {
			if !words[w] {
				t.Errorf("budget %d: split word %q", budget, w)
			}
		}
	}
}

func TestContextHydrator_Hydrate(t *testing.T) {
	ch := NewContextHydrator(4)
	prompt := ch.Hydrate("How do I install it?", sampleResults(), 3000)

	order := []string{"Use ONLY the provided context", "## Context:", "## Sources:", "## Question:", "## Answer:"}
	last := -1
	for _, marker := range order {
		i := strings.Index(prompt, marker)
		if i < 0 {
			t.Fatalf("prompt missing %q:\n%s", marker, prompt)
		}
		if i < last {
			t.Errorf("%q out of order", marker)
		}
		last = i
	}

	if !strings.Contains(prompt, "I don't know") {
		t.Error("prompt should tell the model to admit missing answers")
	}
	if !strings.Contains(prompt, "Install the tool with the package manager."+ChunkDelimiter+"Restart the service") {
		t.Error("chunks should be joined in rank order with the delimiter")
	}
	if !strings.Contains(prompt, `1) guide.md (chunk 0): "Install the tool with the package manager...." (similarity: 0.91)`) {
		t.Errorf("missing first source line:\n%s", prompt)
	}
	if !strings.Contains(prompt, "2) faq.txt (chunk 3)") {
		t.Error("missing second source line")
	}
	if !strings.Contains(prompt, "How do I install it?") {
		t.Error("missing question")
	}
}

func TestContextHydrator_HydrateTruncatesContextOnly(t *testing.T) {
	ch := NewContextHydrator(4)
	results := []models.SearchResult{
		{DocName: "big.md", Text: strings.Repeat("word ", 500), Score: 0.7},
	}

	prompt := ch.Hydrate("q", results, 10)
	start := strings.Index(prompt, "## Context:\n\n") + len("## Context:\n\n")
	end := strings.Index(prompt, "\n\n## Sources:")
	context := prompt[start:end]

	if !strings.HasSuffix(context, Ellipsis) {
		t.Errorf("context not truncated: %q", context)
	}
	if len(context) > 10*4+len(Ellipsis) {
		t.Errorf("context has %d chars", len(context))
	}
}

func TestContextHydrator_NoResults(t *testing.T) {
	ch := NewContextHydrator(0)
	prompt := ch.Hydrate("anything?", nil, 100)

	if !strings.Contains(prompt, "## Sources:") || !strings.Contains(prompt, "anything?") {
		t.Errorf("empty prompt malformed:\n%s", prompt)
	}
}

func TestFormatSources_PreviewLength(t *testing.T) {
	long := strings.Repeat("x", 250)
	line := FormatSources([]models.SearchResult{{DocName: "d", Text: long, Score: 1}})

	if !strings.Contains(line, `"`+strings.Repeat("x", 100)+`..."`) {
		t.Errorf("preview not cut at 100 chars: %s", line)
	}
	if strings.Contains(line, strings.Repeat("x", 101)) {
		t.Error("preview longer than 100 chars")
	}
}

func TestSources(t *testing.T) {
	sources := Sources(sampleResults())
	if len(sources) != 2 || sources[1].DocName != "faq.txt" || sources[1].ChunkIndex != 3 {
		t.Errorf("sources = %+v", sources)
	}
	if sources[0].Score != sampleResults()[0].Score {
		t.Errorf("score = %v, want %v", sources[0].Score, sampleResults()[0].Score)
	}
}
