// ABOUTME: SQLite database schema for the embedding cache
// ABOUTME: One row per chunk keyed by md5(doc#idx), plus a small metadata table
package sqlite

// SchemaVersion is recorded in cache_meta on first open
const SchemaVersion = 1

// Schema contains all SQL statements for database initialization
const Schema = `
-- Cached chunk embeddings; rowid order is insertion order
CREATE TABLE IF NOT EXISTS embeddings (
    id TEXT PRIMARY KEY,
    doc_name TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    chunk_text TEXT NOT NULL,
    vector BLOB NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_embeddings_doc ON embeddings(doc_name, chunk_index);

-- Cache-wide settings such as the embedding model the vectors came from
CREATE TABLE IF NOT EXISTS cache_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
