package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a session id has no row.
var ErrNotFound = sql.ErrNoRows

// Storage persists sessions and messages in the shared SQLite database.
// Message sequence numbers are assigned atomically at insert time, so
// concurrent appends to one session serialize at the storage layer and the
// per-session ordering is gapless.
type Storage struct {
	db *sql.DB
}

// NewStorage wraps an open database handle. The caller owns the handle.
func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// CreateSession inserts a new session row.
func (s *Storage) CreateSession(ctx context.Context, sess *Session) error {
	meta, err := marshalMeta(sess.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling session metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, created_at, updated_at, expires_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, nullable(sess.UserID), sess.CreatedAt, sess.UpdatedAt, sess.ExpiresAt, meta)
	if err != nil {
		return fmt.Errorf("creating session %s: %w", sess.ID, err)
	}
	return nil
}

// GetSession loads a session by id. Returns ErrNotFound when absent.
func (s *Storage) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, created_at, updated_at, expires_at, metadata
		FROM sessions WHERE id = ?`, id)

	var (
		sess   Session
		userID sql.NullString
		meta   sql.NullString
	)
	err := row.Scan(&sess.ID, &userID, &sess.CreatedAt, &sess.UpdatedAt, &sess.ExpiresAt, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}

	sess.UserID = userID.String
	if sess.Metadata, err = unmarshalMeta(meta.String); err != nil {
		return nil, fmt.Errorf("decoding session %s metadata: %w", id, err)
	}
	return &sess, nil
}

// TouchSession refreshes a session's activity and expiry timestamps.
func (s *Storage) TouchSession(ctx context.Context, id string, updatedAt, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET updated_at = ?, expires_at = ? WHERE id = ?`,
		updatedAt, expiresAt, id)
	if err != nil {
		return fmt.Errorf("touching session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage inserts a message and assigns its sequence number in the
// same statement. The aggregate subquery and the UNIQUE(session_id, seq)
// constraint together guarantee a gapless, duplicate-free order even under
// concurrent appends.
func (s *Storage) AppendMessage(ctx context.Context, msg *Message) error {
	meta, err := marshalMeta(msg.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling message metadata: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, session_id, seq, role, content, created_at, metadata)
		SELECT ?, ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?
		FROM messages WHERE session_id = ?
		RETURNING seq`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.CreatedAt, meta,
		msg.SessionID)

	if err := row.Scan(&msg.Seq); err != nil {
		return fmt.Errorf("appending message to session %s: %w", msg.SessionID, err)
	}
	return nil
}

// RecentMessages returns the newest limit messages of a session in
// oldest-first order.
func (s *Storage) RecentMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, seq, role, content, created_at, metadata
		FROM (
			SELECT id, session_id, seq, role, content, created_at, metadata
			FROM messages WHERE session_id = ?
			ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading recent messages for %s: %w", sessionID, err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// ListMessages returns every message of a session in append order.
func (s *Storage) ListMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, seq, role, content, created_at, metadata
		FROM messages WHERE session_id = ?
		ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading messages for %s: %w", sessionID, err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// DeleteExpired removes every session whose expiry is at or before now.
// Messages cascade with their session. Returns the number of sessions
// removed.
func (s *Storage) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("purging expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// DeleteSession removes one session and its messages.
func (s *Storage) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}

// ListSessions returns all stored sessions newest-first, expired included.
func (s *Storage) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, created_at, updated_at, expires_at, metadata
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var (
			sess   Session
			userID sql.NullString
			meta   sql.NullString
		)
		err := rows.Scan(&sess.ID, &userID, &sess.CreatedAt, &sess.UpdatedAt, &sess.ExpiresAt, &meta)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sess.UserID = userID.String
		if sess.Metadata, err = unmarshalMeta(meta.String); err != nil {
			return nil, fmt.Errorf("decoding session %s metadata: %w", sess.ID, err)
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// CountSessions returns the number of stored sessions, expired included.
func (s *Storage) CountSessions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}

func scanMessages(rows *sql.Rows) ([]*Message, error) {
	var msgs []*Message
	for rows.Next() {
		var (
			msg  Message
			role string
			meta sql.NullString
		)
		err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Seq, &role, &msg.Content, &msg.CreatedAt, &meta)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Role = Role(role)
		if msg.Metadata, err = unmarshalMeta(meta.String); err != nil {
			return nil, fmt.Errorf("decoding message %s metadata: %w", msg.ID, err)
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}

func marshalMeta(m map[string]string) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalMeta(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
