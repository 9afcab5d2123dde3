// ABOUTME: Segmenter splits document text into overlapping chunks sized in approximate tokens
// ABOUTME: Packs paragraphs greedily, windows oversized paragraphs, then adds an overlap prefix
package core

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/harper/docrag/internal/models"
)

// DefaultCharsPerToken approximates one model token as four characters of text.
const DefaultCharsPerToken = 4

// paragraphSeparator joins packed paragraphs and the overlap prefix.
const paragraphSeparator = "\n\n"

var blankLine = regexp.MustCompile(`(\r?\n){2,}`)

// Segmenter turns raw text into ordered chunk texts
type Segmenter struct {
	sizeTokens    int
	overlapTokens int
	charsPerToken int
}

// NewSegmenter creates a Segmenter. size and overlap are in approximate tokens.
func NewSegmenter(sizeTokens, overlapTokens, charsPerToken int) (*Segmenter, error) {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	if err := validateSizes(sizeTokens, overlapTokens); err != nil {
		return nil, err
	}
	return &Segmenter{
		sizeTokens:    sizeTokens,
		overlapTokens: overlapTokens,
		charsPerToken: charsPerToken,
	}, nil
}

func validateSizes(sizeTokens, overlapTokens int) error {
	if sizeTokens <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrConfiguration, sizeTokens)
	}
	if overlapTokens < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", models.ErrConfiguration, overlapTokens)
	}
	if overlapTokens >= sizeTokens {
		return fmt.Errorf("%w: chunk overlap (%d) must be smaller than chunk size (%d)",
			models.ErrConfiguration, overlapTokens, sizeTokens)
	}
	return nil
}

// Segment splits text using the sizes given at construction
func (s *Segmenter) Segment(text string) ([]string, error) {
	return s.SegmentWith(text, s.sizeTokens, s.overlapTokens)
}

// SegmentWith splits text with explicit sizes in tokens
func (s *Segmenter) SegmentWith(text string, sizeTokens, overlapTokens int) ([]string, error) {
	if err := validateSizes(sizeTokens, overlapTokens); err != nil {
		return nil, err
	}

	budget := sizeTokens * s.charsPerToken
	overlap := overlapTokens * s.charsPerToken

	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}, nil
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, para := range splitParagraphs(text) {
		if len(para) > budget {
			flush()
			chunks = append(chunks, windowSplit(para, budget, budget-overlap)...)
			continue
		}

		if current.Len() == 0 {
			current.WriteString(para)
			continue
		}
		if current.Len()+len(paragraphSeparator)+len(para) <= budget {
			current.WriteString(paragraphSeparator)
			current.WriteString(para)
			continue
		}

		flush()
		current.WriteString(para)
	}
	flush()

	return addOverlap(chunks, overlap), nil
}

// splitParagraphs splits on blank lines and drops empty paragraphs
func splitParagraphs(text string) []string {
	parts := blankLine.Split(text, -1)
	paragraphs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		paragraphs = append(paragraphs, p)
	}
	return paragraphs
}

// windowSplit cuts text into windows of at most size bytes, advancing by stride.
// Window edges never split a UTF-8 sequence.
func windowSplit(text string, size, stride int) []string {
	var pieces []string
	for start := 0; start < len(text); {
		end := start + size
		if end >= len(text) {
			pieces = append(pieces, text[start:])
			break
		}
		end = runeFloor(text, end)
		if end <= start {
			_, w := utf8.DecodeRuneInString(text[start:])
			end = start + w
		}
		pieces = append(pieces, text[start:end])

		next := runeFloor(text, start+stride)
		if next <= start {
			next = end
		}
		start = next
	}
	return pieces
}

// addOverlap prefixes every chunk after the first with the tail of its predecessor
func addOverlap(chunks []string, overlap int) []string {
	if len(chunks) <= 1 || overlap <= 0 {
		return chunks
	}

	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		out[i] = tail(chunks[i-1], overlap) + paragraphSeparator + chunks[i]
	}
	return out
}

// tail returns at most n trailing bytes of s, starting on a rune boundary
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}

// runeFloor moves i back to the start of the rune containing it
func runeFloor(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
