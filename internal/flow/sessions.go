// Package flow provides store-backed session management.
package flow

import (
	"log/slog"
	"time"

	"github.com/surtifrio/flowbot/internal/models"
)

// SessionManager loads and persists per-identity sessions through a
// SessionStore. Sessions are created lazily on first contact and are never
// deleted; a close-out resets the current flow to root while keeping the
// captured fields and cart.
type SessionManager struct {
	store SessionStore
}

// NewSessionManager creates a SessionManager backed by the given store.
func NewSessionManager(store SessionStore) *SessionManager {
	slog.Debug("Creating SessionManager")
	return &SessionManager{store: store}
}

// Get retrieves the session for an identity, or nil if none exists yet.
func (sm *SessionManager) Get(identity string) (*models.Session, error) {
	return sm.store.GetSession(identity)
}

// Ensure retrieves the session for an identity, creating it if this is the
// identity's first contact. The returned session always has its
// LastMessageAt updated to now.
func (sm *SessionManager) Ensure(identity string) (*models.Session, error) {
	if identity == "" {
		return nil, models.ErrEmptyIdentity
	}
	sess, err := sm.store.GetSession(identity)
	if err != nil {
		slog.Error("SessionManager Ensure get failed", "error", err, "identity", identity)
		return nil, err
	}
	now := time.Now()
	if sess == nil {
		sess = &models.Session{
			Identity:      identity,
			StartedAt:     now,
			LastMessageAt: now,
		}
		slog.Debug("SessionManager created session", "identity", identity)
	} else {
		sess.LastMessageAt = now
	}
	return sess, nil
}

// Save persists the session.
func (sm *SessionManager) Save(sess *models.Session) error {
	if err := sm.store.SaveSession(*sess); err != nil {
		slog.Error("SessionManager Save failed", "error", err, "identity", sess.Identity)
		return err
	}
	slog.Debug("SessionManager Save succeeded", "identity", sess.Identity, "currentFlow", sess.CurrentFlow)
	return nil
}

// ResetToRoot clears the session's current flow without deleting its captured
// history. A no-op when no session exists for the identity.
func (sm *SessionManager) ResetToRoot(identity string) error {
	sess, err := sm.store.GetSession(identity)
	if err != nil {
		slog.Error("SessionManager ResetToRoot get failed", "error", err, "identity", identity)
		return err
	}
	if sess == nil {
		return nil
	}
	sess.CurrentFlow = ""
	if err := sm.store.SaveSession(*sess); err != nil {
		slog.Error("SessionManager ResetToRoot save failed", "error", err, "identity", identity)
		return err
	}
	slog.Debug("SessionManager ResetToRoot succeeded", "identity", identity)
	return nil
}
