// Package auth issues and validates the opaque session tokens that bind one
// player to one game. Tokens are stored server-side so they can be refreshed
// on use and revoked outright.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jarlsgame/jarls/server/internal/logger"
	"github.com/jarlsgame/jarls/server/internal/model"
	"github.com/jarlsgame/jarls/server/internal/repository"
)

// ErrInvalidSession covers missing, expired, and malformed tokens alike, so
// callers cannot tell which of the three they hit.
var ErrInvalidSession = errors.New("invalid or expired session")

// SessionTTL is how long a session lives without activity. Every validated
// operation pushes the deadline out again.
const SessionTTL = 24 * time.Hour

// SessionManager creates and validates sessions backed by a SessionStore.
type SessionManager struct {
	store repository.SessionStore
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(store repository.SessionStore) *SessionManager {
	return &SessionManager{store: store}
}

// Create issues a fresh token bound to one player in one game.
func (m *SessionManager) Create(ctx context.Context, gameID, playerID, playerName string) (*model.Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	s := &model.Session{
		Token:      token,
		GameID:     gameID,
		PlayerID:   playerID,
		PlayerName: playerName,
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.store.Save(ctx, s, SessionTTL); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// Validate resolves a token to its session and refreshes the TTL.
// Returns ErrInvalidSession for anything that does not resolve.
func (m *SessionManager) Validate(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}
	s, err := m.store.Find(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("validate session: %w", err)
	}
	if s == nil {
		return nil, ErrInvalidSession
	}
	if err := m.store.Touch(ctx, token, SessionTTL); err != nil {
		lg := logger.Get()
		lg.Warn().Err(err).Str("gameId", s.GameID).Msg("Session TTL refresh failed")
	}
	return s, nil
}

// Refresh pushes a token's TTL out without resolving the session. Used by
// the socket layer, where the seat binding already carries the identity.
func (m *SessionManager) Refresh(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidSession
	}
	if err := m.store.Touch(ctx, token, SessionTTL); err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	return nil
}

// Invalidate revokes a token immediately.
func (m *SessionManager) Invalidate(ctx context.Context, token string) error {
	if err := m.store.Delete(ctx, token); err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	return nil
}

// newToken returns 32 bytes of crypto entropy as 64 hex characters.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
