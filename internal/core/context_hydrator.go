// ABOUTME: ContextHydrator assembles grounded prompts from ranked retrieval results
// ABOUTME: Joins chunk texts, enforces a token budget and lists sources for citation
package core

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/harper/docrag/internal/models"
)

const (
	// ChunkDelimiter separates chunk texts inside the context section
	ChunkDelimiter = "\n\n---\n\n"
	// Ellipsis marks a truncated context
	Ellipsis = "..."

	sourcePreviewChars = 100
)

const instructions = `You are a helpful assistant. Use ONLY the provided context to answer the user's question.
If the answer is not found in the context, say "I don't know" and show the retrieved sources.
Always cite your sources.`

// ContextHydrator builds prompts for the downstream generator
type ContextHydrator struct {
	charsPerToken int
}

// NewContextHydrator creates a ContextHydrator using the given chars-per-token ratio
func NewContextHydrator(charsPerToken int) *ContextHydrator {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return &ContextHydrator{charsPerToken: charsPerToken}
}

// Hydrate assembles the full prompt: instructions, bounded context, sources and question
func (ch *ContextHydrator) Hydrate(query string, results []models.SearchResult, maxTokens int) string {
	var sections []string

	sections = append(sections, instructions+"\n")
	sections = append(sections, "## Context:\n\n"+ch.Context(results, maxTokens)+"\n")
	sections = append(sections, "## Sources:\n\n"+FormatSources(results)+"\n")
	sections = append(sections, "## Question:\n\n"+query+"\n")
	sections = append(sections, "## Answer:\n")

	return strings.Join(sections, "\n")
}

// Context joins chunk texts in rank order and truncates the result to maxTokens
func (ch *ContextHydrator) Context(results []models.SearchResult, maxTokens int) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return ch.Truncate(strings.Join(texts, ChunkDelimiter), maxTokens)
}

// Truncate applies TruncateContext with this hydrator's ratio
func (ch *ContextHydrator) Truncate(text string, maxTokens int) string {
	return TruncateContext(text, maxTokens, ch.charsPerToken)
}

// TruncateContext cuts text to maxTokens*charsPerToken characters at the last
// whitespace before the limit and appends an ellipsis. Shorter text is returned as is.
func TruncateContext(text string, maxTokens, charsPerToken int) string {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	maxChars := maxTokens * charsPerToken
	if maxChars < 0 {
		maxChars = 0
	}
	if len(text) <= maxChars {
		return text
	}

	cut := runeFloor(text, maxChars)
	head := text[:cut]

	// Back off to the last whitespace so no word is split
	if i := strings.LastIndexFunc(head, unicode.IsSpace); i >= 0 {
		head = head[:i]
	}
	return strings.TrimRightFunc(head, unicode.IsSpace) + Ellipsis
}

// FormatSources renders one numbered line per result
func FormatSources(results []models.SearchResult) string {
	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = fmt.Sprintf("%d) %s (chunk %d): \"%s...\" (similarity: %.2f)",
			i+1, r.DocName, r.ChunkIndex, preview(r.Text, sourcePreviewChars), r.Score)
	}
	return strings.Join(lines, "\n")
}

// Source is the machine-readable form of a sources line
type Source struct {
	DocName    string  `json:"doc_name"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

// Sources projects results to their citation data
func Sources(results []models.SearchResult) []Source {
	out := make([]Source, len(results))
	for i, r := range results {
		out[i] = Source{DocName: r.DocName, ChunkIndex: r.ChunkIndex, Score: r.Score}
	}
	return out
}

// preview returns at most n runes of s on a single line
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) > n {
		s = string([]rune(s)[:n])
	}
	return strings.Join(strings.Fields(s), " ")
}
