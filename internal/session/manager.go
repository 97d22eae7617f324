package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AssetOverflow/BibleStudyAI/internal/config"
	apperrors "github.com/AssetOverflow/BibleStudyAI/internal/errors"
)

// Manager owns the session lifecycle: creation, expiry refresh on each
// message, the bounded context window, and garbage collection of expired
// conversations.
type Manager struct {
	storage *Storage
	cfg     config.SessionsConfig
	logger  *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewManager creates a session manager over the given storage.
func NewManager(storage *Storage, cfg config.SessionsConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		storage: storage,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// GetOrCreate resolves a session id for a new request. An active session is
// refreshed and reused. A missing or expired id yields a fresh session, and
// created=true tells the caller the id changed: an expired conversation is
// never silently resurrected.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (sessionID string, created bool, err error) {
	now := m.now()

	if id != "" {
		sess, err := m.storage.GetSession(ctx, id)
		switch {
		case err == nil && sess.Active(now):
			if err := m.storage.TouchSession(ctx, id, now, now.Add(m.cfg.TTL)); err != nil {
				return "", false, apperrors.InternalError("refreshing session", err)
			}
			return id, false, nil
		case err == nil:
			m.logger.Info("session expired, starting a new conversation",
				slog.String("session_id", id))
		case !errors.Is(err, ErrNotFound):
			return "", false, apperrors.InternalError("loading session", err)
		}
	}

	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.cfg.TTL),
	}
	if err := m.storage.CreateSession(ctx, sess); err != nil {
		return "", false, apperrors.InternalError("creating session", err)
	}
	return sess.ID, true, nil
}

// Append records one conversation turn. Fails with SessionNotFound or
// SessionExpired rather than writing into a dead conversation; the message
// also refreshes the session's expiry.
func (m *Manager) Append(ctx context.Context, sessionID string, role Role, content string) (*Message, error) {
	if !role.Valid() {
		return nil, apperrors.ValidationError("unknown message role "+string(role), nil)
	}

	now := m.now()
	sess, err := m.storage.GetSession(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperrors.SessionNotFound(sessionID)
	}
	if err != nil {
		return nil, apperrors.InternalError("loading session", err)
	}
	if !sess.Active(now) {
		return nil, apperrors.SessionExpired(sessionID)
	}

	msg := &Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}
	if err := m.storage.AppendMessage(ctx, msg); err != nil {
		return nil, apperrors.InternalError("appending message", err)
	}
	if err := m.storage.TouchSession(ctx, sessionID, now, now.Add(m.cfg.TTL)); err != nil {
		return nil, apperrors.InternalError("refreshing session", err)
	}
	return msg, nil
}

// ContextWindow returns the newest messages of a session, oldest-first,
// bounded by the configured window size. Deterministic for a given stored
// history.
func (m *Manager) ContextWindow(ctx context.Context, sessionID string) ([]*Message, error) {
	msgs, err := m.storage.RecentMessages(ctx, sessionID, m.cfg.ContextWindow)
	if err != nil {
		return nil, apperrors.InternalError("loading context window", err)
	}
	return msgs, nil
}

// History returns the full message log of a session in append order. An
// unknown session id yields SessionNotFound.
func (m *Manager) History(ctx context.Context, sessionID string) ([]*Message, error) {
	if _, err := m.storage.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.SessionNotFound(sessionID)
		}
		return nil, apperrors.InternalError("loading session", err)
	}
	msgs, err := m.storage.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, apperrors.InternalError("loading history", err)
	}
	return msgs, nil
}

// CollectGarbage purges sessions whose expiry has passed. Messages cascade.
func (m *Manager) CollectGarbage(ctx context.Context) (int64, error) {
	purged, err := m.storage.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		m.logger.Info("purged expired sessions", slog.Int64("count", purged))
	}
	return purged, nil
}

// RunGC purges expired sessions on the configured interval until the
// context is cancelled. Intended to run in its own goroutine.
func (m *Manager) RunGC(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.CollectGarbage(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn("session gc failed", slog.Any("error", err))
			}
		}
	}
}
