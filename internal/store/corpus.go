package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// SQLiteCorpus implements CorpusStore on a shared *sql.DB.
type SQLiteCorpus struct {
	db *sql.DB
}

var _ CorpusStore = (*SQLiteCorpus)(nil)

// NewSQLiteCorpus wraps an open corpus database.
func NewSQLiteCorpus(db *sql.DB) *SQLiteCorpus {
	return &SQLiteCorpus{db: db}
}

// ErrNotFound is returned for lookups of unknown ids.
var ErrNotFound = sql.ErrNoRows

// SaveDocuments inserts or replaces documents in one transaction.
func (s *SQLiteCorpus) SaveDocuments(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO documents
			(id, translation, testament, book, book_order, text, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		meta, err := marshalMetadata(d.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", d.ID, err)
		}
		created := d.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			d.ID, d.Translation, d.Testament, d.Book, d.BookOrder, d.Text, meta, created); err != nil {
			return fmt.Errorf("insert document %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

// GetDocument looks up a document by id.
func (s *SQLiteCorpus) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, translation, testament, book, book_order, text, metadata, created_at
		FROM documents WHERE id = ?`, id)

	var d Document
	var meta sql.NullString
	if err := row.Scan(&d.ID, &d.Translation, &d.Testament, &d.Book, &d.BookOrder, &d.Text, &meta, &d.CreatedAt); err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	var err error
	if d.Metadata, err = unmarshalMetadata(meta); err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
	}
	return &d, nil
}

// SaveChunks inserts or replaces chunks in one transaction.
func (s *SQLiteCorpus) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks
			(id, document_id, translation, book, chapter, verse_start, verse_end,
			 content, embedding, ordinal, token_count, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		meta, err := marshalMetadata(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", c.ID, err)
		}
		var blob any
		if c.Embedding != nil {
			blob = EncodeEmbedding(c.Embedding)
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.DocumentID, c.Translation, c.Book, c.Chapter, c.VerseStart, c.VerseEnd,
			c.Content, blob, c.Ordinal, c.TokenCount, meta); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

const chunkColumns = `id, document_id, translation, book, chapter, verse_start, verse_end,
	content, embedding, ordinal, token_count, metadata`

// GetChunk looks up a chunk by id.
func (s *SQLiteCorpus) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if err != nil {
		return nil, fmt.Errorf("get chunk %s: %w", id, err)
	}
	return c, nil
}

// GetChunks retrieves chunks by id in a single query. Missing ids are
// silently skipped; callers detect them by comparing lengths.
func (s *SQLiteCorpus) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Chunk, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	// Preserve request order.
	out := make([]*Chunk, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// CountChunks returns the total chunk count.
func (s *SQLiteCorpus) CountChunks(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// EmbeddedChunks streams all chunks that carry an embedding in ordinal
// order. fn returning an error aborts the scan.
func (s *SQLiteCorpus) EmbeddedChunks(ctx context.Context, fn func(*Chunk) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE embedding IS NOT NULL ORDER BY document_id, ordinal`)
	if err != nil {
		return fmt.Errorf("query embedded chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return fmt.Errorf("scan chunk: %w", err)
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SetChunkLabels replaces the label set of a chunk.
func (s *SQLiteCorpus) SetChunkLabels(ctx context.Context, chunkID string, labels []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_labels WHERE chunk_id = ?`, chunkID); err != nil {
		return fmt.Errorf("clear labels for %s: %w", chunkID, err)
	}
	for _, label := range labels {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO chunk_labels (chunk_id, label) VALUES (?, ?)`, chunkID, label); err != nil {
			return fmt.Errorf("insert label %s for %s: %w", label, chunkID, err)
		}
	}

	return tx.Commit()
}

// ChunkIDsByLabel returns the set of chunk ids carrying a label.
func (s *SQLiteCorpus) ChunkIDsByLabel(ctx context.Context, label string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id FROM chunk_labels WHERE label = ?`, label)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// GetState reads a runtime state value. Missing keys return "".
func (s *SQLiteCorpus) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

// SetState writes a runtime state value.
func (s *SQLiteCorpus) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// Close is a no-op; the shared database handle is owned by the caller.
func (s *SQLiteCorpus) Close() error { return nil }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var c Chunk
	var blob []byte
	var meta sql.NullString
	if err := row.Scan(&c.ID, &c.DocumentID, &c.Translation, &c.Book, &c.Chapter,
		&c.VerseStart, &c.VerseEnd, &c.Content, &blob, &c.Ordinal, &c.TokenCount, &meta); err != nil {
		return nil, err
	}
	if blob != nil {
		vec, err := DecodeEmbedding(blob)
		if err != nil {
			return nil, err
		}
		c.Embedding = vec
	}
	var err error
	if c.Metadata, err = unmarshalMetadata(meta); err != nil {
		return nil, err
	}
	return &c, nil
}

func marshalMetadata(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func unmarshalMetadata(s sql.NullString) (map[string]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeEmbedding serializes a vector as little-endian float32.
func EncodeEmbedding(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeEmbedding deserializes a little-endian float32 vector.
func DecodeEmbedding(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
