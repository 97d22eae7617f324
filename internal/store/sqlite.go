package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// schema is applied on open. CREATE IF NOT EXISTS keeps it idempotent
// across restarts; the sessions tables are owned by internal/session but
// live in the same database for cascading deletes.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
    id          TEXT PRIMARY KEY,
    translation TEXT NOT NULL,
    testament   TEXT NOT NULL,
    book        TEXT NOT NULL,
    book_order  INTEGER NOT NULL,
    text        TEXT NOT NULL,
    metadata    TEXT,
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chunks (
    id          TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    translation TEXT NOT NULL,
    book        TEXT NOT NULL,
    chapter     INTEGER NOT NULL,
    verse_start INTEGER NOT NULL,
    verse_end   INTEGER NOT NULL,
    content     TEXT NOT NULL,
    embedding   BLOB,
    ordinal     INTEGER NOT NULL,
    token_count INTEGER NOT NULL DEFAULT 0,
    metadata    TEXT
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_book ON chunks(translation, book, chapter);

CREATE TABLE IF NOT EXISTS chunk_labels (
    chunk_id TEXT NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
    label    TEXT NOT NULL,
    PRIMARY KEY (chunk_id, label)
);
CREATE INDEX IF NOT EXISTS idx_chunk_labels_label ON chunk_labels(label);

CREATE TABLE IF NOT EXISTS graph_nodes (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    kind        TEXT NOT NULL,
    chunk_id    TEXT,
    document_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_graph_nodes_name ON graph_nodes(name COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS graph_edges (
    id        TEXT PRIMARY KEY,
    source_id TEXT NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
    target_id TEXT NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
    relation  TEXT NOT NULL,
    weight    REAL NOT NULL DEFAULT 1.0
);
CREATE INDEX IF NOT EXISTS idx_graph_edges_source ON graph_edges(source_id);

CREATE TABLE IF NOT EXISTS sessions (
    id         TEXT PRIMARY KEY,
    user_id    TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    expires_at TIMESTAMP NOT NULL,
    metadata   TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);

CREATE TABLE IF NOT EXISTS messages (
    id         TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    seq        INTEGER NOT NULL,
    role       TEXT NOT NULL,
    content    TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    metadata   TEXT,
    UNIQUE (session_id, seq)
);

CREATE TABLE IF NOT EXISTS state (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// validateSQLiteIntegrity checks if a SQLite database is valid before
// opening it for use. Returns nil if valid or absent.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Database doesn't exist, will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	return nil
}

// OpenDB opens (or creates) the corpus database and applies the schema.
// If path is empty, an in-memory database is used for testing.
// Uses WAL mode for concurrent access.
func OpenDB(path string) (*sql.DB, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("corpus_db_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			return nil, fmt.Errorf("corpus database corrupted at %s: %w", path, validErr)
		}

		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA cache_size = -65536", // 64MB cache (negative = KB)
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}
