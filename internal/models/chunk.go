// ABOUTME: Corpus document model and chunk identity helpers
// ABOUTME: Chunk keys and document fingerprints are md5 hex digests
package models

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// Document is one corpus file. Name is the file name and is unique in a corpus.
type Document struct {
	Name string `json:"name" yaml:"name"`
	Text string `json:"text" yaml:"text"`
}

// ChunkKey derives the stable cache key for chunk idx of doc.
func ChunkKey(doc string, idx int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s#%d", doc, idx)))
	return hex.EncodeToString(sum[:])
}

// Fingerprint hashes the concatenated chunk texts in index order.
// Equal fingerprints mean the cached vectors of a document are still valid.
func Fingerprint(texts []string) string {
	sum := md5.Sum([]byte(strings.Join(texts, "")))
	return hex.EncodeToString(sum[:])
}
