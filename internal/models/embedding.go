// ABOUTME: Embedding cache records and vector search results
// ABOUTME: Vectors are float32 and unit length once they leave the embedder
package models

import "time"

// KeyedVector is one cached vector with its chunk key, in insertion order.
type KeyedVector struct {
	Key    string    `json:"key"`
	Vector []float32 `json:"vector"`
}

// ChunkMeta is the chunk metadata carried next to each index entry.
type ChunkMeta struct {
	DocName    string `json:"doc_name" yaml:"doc_name"`
	ChunkIndex int    `json:"chunk_index" yaml:"chunk_index"`
	Text       string `json:"text" yaml:"text"`
}

// ChunkRecord is a cache row without its vector.
type ChunkRecord struct {
	Key        string    `json:"key" yaml:"key"`
	DocName    string    `json:"doc_name" yaml:"doc_name"`
	ChunkIndex int       `json:"chunk_index" yaml:"chunk_index"`
	Text       string    `json:"text" yaml:"text"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// Meta drops the key and timestamp.
func (r ChunkRecord) Meta() ChunkMeta {
	return ChunkMeta{DocName: r.DocName, ChunkIndex: r.ChunkIndex, Text: r.Text}
}

// DocumentSummary describes one cached document.
type DocumentSummary struct {
	Name        string `json:"name" yaml:"name"`
	Chunks      int    `json:"chunks" yaml:"chunks"`
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`
}

// SearchResult is one ranked hit. Ordinal is only meaningful until the next rebuild.
type SearchResult struct {
	Ordinal    int     `json:"ordinal"`
	Key        string  `json:"key"`
	Score      float32 `json:"score"`
	DocName    string  `json:"doc_name"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
}

// Generation is the result of one call to a text generator.
type Generation struct {
	Text             string `json:"text"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}
