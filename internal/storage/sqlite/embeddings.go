// ABOUTME: Embedding cache operations for SQLite
// ABOUTME: Stores float32 vectors as little-endian BLOBs keyed by chunk identity
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/harper/docrag/internal/models"
)

// EmbeddingCache is the durable system of record for chunk embeddings
type EmbeddingCache struct {
	db *DB
}

// NewEmbeddingCache creates a new EmbeddingCache
func NewEmbeddingCache(db *DB) *EmbeddingCache {
	return &EmbeddingCache{db: db}
}

// BindModel records which embedding model fills the cache. A cache already bound
// to another model or dimension is rejected until it is cleared.
func (c *EmbeddingCache) BindModel(ctx context.Context, model string, dim int) error {
	return c.db.withTx(ctx, func(tx *sql.Tx) error {
		stored, err := metaValue(ctx, tx, "embedding_model")
		if err != nil {
			return err
		}
		storedDim, err := metaValue(ctx, tx, "embedding_dimension")
		if err != nil {
			return err
		}

		if stored == "" {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO cache_meta (key, value) VALUES ('embedding_model', ?), ('embedding_dimension', ?)`,
				model, strconv.Itoa(dim)); err != nil {
				return fmt.Errorf("%w: bind model: %w", models.ErrStorage, err)
			}
			return nil
		}

		if storedDim != strconv.Itoa(dim) {
			return fmt.Errorf("%w: cache holds %s-dimensional vectors, model %s produces %d",
				models.ErrDimensionMismatch, storedDim, model, dim)
		}
		if stored != model {
			return fmt.Errorf("%w: cache was built with %s, configured model is %s; clear the cache to switch",
				models.ErrConfiguration, stored, model)
		}
		return nil
	})
}

// Model returns the bound embedding model, or "" when the cache is unbound
func (c *EmbeddingCache) Model(ctx context.Context) (string, error) {
	var model sql.NullString
	err := c.db.conn.QueryRowContext(ctx,
		`SELECT value FROM cache_meta WHERE key = 'embedding_model'`).Scan(&model)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: read model: %w", models.ErrStorage, err)
	}
	return model.String, nil
}

func metaValue(ctx context.Context, tx *sql.Tx, key string) (string, error) {
	var v string
	err := tx.QueryRowContext(ctx, `SELECT value FROM cache_meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", models.ErrStorage, key, err)
	}
	return v, nil
}

// Put stores the chunks of doc. Keys already present are skipped.
// Returns the number of rows inserted; all rows commit together.
func (c *EmbeddingCache) Put(ctx context.Context, doc string, texts []string, vectors [][]float32) (int, error) {
	if len(texts) != len(vectors) {
		return 0, fmt.Errorf("%w: %d chunks but %d vectors for %s",
			models.ErrDimensionMismatch, len(texts), len(vectors), doc)
	}
	if len(texts) == 0 {
		return 0, nil
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: vector %d of %s has %d dimensions, want %d",
				models.ErrDimensionMismatch, i, doc, len(v), dim)
		}
	}

	inserted := 0
	err := c.db.withTx(ctx, func(tx *sql.Tx) error {
		var blobLen int
		err := tx.QueryRowContext(ctx, `SELECT length(vector) FROM embeddings LIMIT 1`).Scan(&blobLen)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("%w: read stored dimension: %w", models.ErrStorage, err)
		case blobLen/4 != dim:
			return fmt.Errorf("%w: cache holds %d-dimensional vectors, got %d",
				models.ErrDimensionMismatch, blobLen/4, dim)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO embeddings (id, doc_name, chunk_index, chunk_text, vector, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("%w: prepare insert: %w", models.ErrStorage, err)
		}
		defer func() { _ = stmt.Close() }()

		now := time.Now().UTC()
		for i, text := range texts {
			res, err := stmt.ExecContext(ctx, models.ChunkKey(doc, i), doc, i, text, vectorToBlob(vectors[i]), now)
			if err != nil {
				return fmt.Errorf("%w: insert %s#%d: %w", models.ErrStorage, doc, i, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Fingerprint returns the content hash of the stored chunks of doc.
// ok is false when the document has no rows.
func (c *EmbeddingCache) Fingerprint(ctx context.Context, doc string) (fingerprint string, ok bool, err error) {
	rows, err := c.db.conn.QueryContext(ctx, `
		SELECT chunk_text FROM embeddings WHERE doc_name = ? ORDER BY chunk_index ASC
	`, doc)
	if err != nil {
		return "", false, fmt.Errorf("%w: fingerprint %s: %w", models.ErrStorage, doc, err)
	}
	defer func() { _ = rows.Close() }()

	var texts []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return "", false, fmt.Errorf("%w: scan chunk text: %w", models.ErrStorage, err)
		}
		texts = append(texts, text)
	}
	if err := rows.Err(); err != nil {
		return "", false, fmt.Errorf("%w: fingerprint %s: %w", models.ErrStorage, doc, err)
	}
	if len(texts) == 0 {
		return "", false, nil
	}
	return models.Fingerprint(texts), true, nil
}

// VectorsForDocument returns the vectors of doc in chunk order
func (c *EmbeddingCache) VectorsForDocument(ctx context.Context, doc string) ([][]float32, error) {
	rows, err := c.db.conn.QueryContext(ctx, `
		SELECT vector FROM embeddings WHERE doc_name = ? ORDER BY chunk_index ASC
	`, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: vectors for %s: %w", models.ErrStorage, doc, err)
	}
	defer func() { _ = rows.Close() }()

	var vectors [][]float32
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("%w: scan vector: %w", models.ErrStorage, err)
		}
		vectors = append(vectors, blobToVector(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: vectors for %s: %w", models.ErrStorage, doc, err)
	}
	return vectors, nil
}

// AllVectors lists every cached vector with its key in insertion order
func (c *EmbeddingCache) AllVectors(ctx context.Context) ([]models.KeyedVector, error) {
	rows, err := c.db.conn.QueryContext(ctx, `SELECT id, vector FROM embeddings ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list vectors: %w", models.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.KeyedVector
	for rows.Next() {
		var (
			kv   models.KeyedVector
			blob []byte
		)
		if err := rows.Scan(&kv.Key, &blob); err != nil {
			return nil, fmt.Errorf("%w: scan vector: %w", models.ErrStorage, err)
		}
		kv.Vector = blobToVector(blob)
		out = append(out, kv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list vectors: %w", models.ErrStorage, err)
	}
	return out, nil
}

// AllMetadata lists every cached chunk without vectors in insertion order
func (c *EmbeddingCache) AllMetadata(ctx context.Context) ([]models.ChunkRecord, error) {
	rows, err := c.db.conn.QueryContext(ctx, `
		SELECT id, doc_name, chunk_index, chunk_text, created_at FROM embeddings ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: list metadata: %w", models.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// FindByOrdinal returns the chunk at 0-based position ordinal in insertion
// order, or nil when out of range. Intended for debugging.
func (c *EmbeddingCache) FindByOrdinal(ctx context.Context, ordinal int) (*models.ChunkRecord, error) {
	if ordinal < 0 {
		return nil, nil
	}

	rows, err := c.db.conn.QueryContext(ctx, `
		SELECT id, doc_name, chunk_index, chunk_text, created_at
		FROM embeddings ORDER BY rowid ASC LIMIT 1 OFFSET ?
	`, ordinal)
	if err != nil {
		return nil, fmt.Errorf("%w: find ordinal %d: %w", models.ErrStorage, ordinal, err)
	}
	defer func() { _ = rows.Close() }()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// Documents summarizes every cached document, ordered by name
func (c *EmbeddingCache) Documents(ctx context.Context) ([]models.DocumentSummary, error) {
	rows, err := c.db.conn.QueryContext(ctx, `
		SELECT doc_name, chunk_text FROM embeddings ORDER BY doc_name ASC, chunk_index ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents: %w", models.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	var (
		docs  []models.DocumentSummary
		texts []string
	)
	finish := func() {
		if len(docs) > 0 {
			last := &docs[len(docs)-1]
			last.Chunks = len(texts)
			last.Fingerprint = models.Fingerprint(texts)
		}
	}

	for rows.Next() {
		var doc, text string
		if err := rows.Scan(&doc, &text); err != nil {
			return nil, fmt.Errorf("%w: scan document: %w", models.ErrStorage, err)
		}
		if len(docs) == 0 || docs[len(docs)-1].Name != doc {
			finish()
			docs = append(docs, models.DocumentSummary{Name: doc})
			texts = texts[:0]
		}
		texts = append(texts, text)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list documents: %w", models.ErrStorage, err)
	}
	finish()

	return docs, nil
}

// Delete removes every chunk of doc and returns the number of rows removed
func (c *EmbeddingCache) Delete(ctx context.Context, doc string) (int64, error) {
	var removed int64
	err := c.db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE doc_name = ?`, doc)
		if err != nil {
			return fmt.Errorf("%w: delete %s: %w", models.ErrStorage, doc, err)
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	return removed, err
}

// Clear removes every cached chunk and the model binding
func (c *EmbeddingCache) Clear(ctx context.Context) error {
	return c.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings`); err != nil {
			return fmt.Errorf("%w: clear embeddings: %w", models.ErrStorage, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM cache_meta WHERE key IN ('embedding_model', 'embedding_dimension')`); err != nil {
			return fmt.Errorf("%w: clear model binding: %w", models.ErrStorage, err)
		}
		return nil
	})
}

// Count returns the number of cached chunks
func (c *EmbeddingCache) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", models.ErrStorage, err)
	}
	return n, nil
}

// scanRecords scans rows of (id, doc_name, chunk_index, chunk_text, created_at)
func scanRecords(rows *sql.Rows) ([]models.ChunkRecord, error) {
	var records []models.ChunkRecord

	for rows.Next() {
		var (
			r         models.ChunkRecord
			createdAt sql.NullTime
		)
		if err := rows.Scan(&r.Key, &r.DocName, &r.ChunkIndex, &r.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan record: %w", models.ErrStorage, err)
		}
		if createdAt.Valid {
			r.CreatedAt = createdAt.Time
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan records: %w", models.ErrStorage, err)
	}
	return records, nil
}

// vectorToBlob encodes a float32 slice as little-endian IEEE-754
func vectorToBlob(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// blobToVector decodes a little-endian float32 blob
func blobToVector(blob []byte) []float32 {
	count := len(blob) / 4
	vector := make([]float32, count)
	for i := 0; i < count; i++ {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}
