package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/agora-social/agora-admin/internal/audit"
	"github.com/agora-social/agora-admin/internal/config"
	"github.com/agora-social/agora-admin/internal/model"
)

// sessionTokenBytes is the token entropy: 256 bits.
const sessionTokenBytes = 32

func newSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken returns the hex SHA-256 digest stored in place of a token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// CreateSession issues a new session for adminID. The returned token is the
// only copy of the plaintext; the store keeps its hash.
func (s *AuthService) CreateSession(ctx context.Context, adminID int64, meta RequestMeta) (string, *model.AdminSession, error) {
	token, err := newSessionToken()
	if err != nil {
		return "", nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", nil, fmt.Errorf("generate session id: %w", err)
	}

	now := s.now().UTC()
	sess := &model.AdminSession{
		ID:                id.String(),
		AdminID:           adminID,
		TokenHash:         HashToken(token),
		IPAddress:         meta.IPAddress,
		UserAgent:         meta.UserAgent,
		DeviceFingerprint: meta.DeviceFingerprint,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.opts.SessionTTL),
		LastActivityAt:    now,
		IsActive:          true,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return "", nil, err
	}
	return token, sess, nil
}

// ValidateSession resolves token to its principal. Unknown, revoked and
// expired tokens, and tokens of disabled or locked admins, all yield
// ErrSessionInvalid. Any other error is a store failure.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*AuthContext, error) {
	if token == "" {
		return nil, ErrSessionInvalid
	}
	now := s.now()

	sess, err := s.store.GetSessionByTokenHash(ctx, HashToken(token))
	if errors.Is(err, config.ErrNotFound) {
		return nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if !sess.IsActive || sess.Expired(now) {
		return nil, ErrSessionInvalid
	}

	admin, err := s.store.GetAdmin(ctx, sess.AdminID)
	if errors.Is(err, config.ErrNotFound) {
		return nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session admin: %w", err)
	}
	if !admin.IsActive || admin.IsLocked(now) {
		return nil, ErrSessionInvalid
	}

	role, err := s.store.GetRole(ctx, admin.RoleID)
	if errors.Is(err, config.ErrNotFound) {
		return nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session role: %w", err)
	}

	s.touch(ctx, sess.ID)
	sess.LastActivityAt = now.UTC()

	return &AuthContext{Admin: admin.Sanitized(), Role: role, Session: sess}, nil
}

// touch records activity on a session without affecting the caller.
func (s *AuthService) touch(ctx context.Context, sessionID string) {
	at := s.now()
	if s.opts.Touches != nil {
		s.opts.Touches.Submit("session_touch", func(ctx context.Context) error {
			return s.store.TouchSession(ctx, sessionID, at)
		})
		return
	}
	if err := s.store.TouchSession(ctx, sessionID, at); err != nil {
		s.logger.Warn("session touch failed", "session_id", sessionID, "error", err)
	}
}

// InvalidateSession ends the session behind token (logout). Unknown or
// already-ended tokens are not an error.
func (s *AuthService) InvalidateSession(ctx context.Context, token string, meta RequestMeta) error {
	if token == "" {
		return nil
	}
	hash := HashToken(token)
	sess, err := s.store.GetSessionByTokenHash(ctx, hash)
	if errors.Is(err, config.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup session: %w", err)
	}

	n, err := s.store.DeactivateSessionByTokenHash(ctx, hash)
	if err != nil {
		return err
	}
	if n > 0 {
		s.audit.Log(ctx, audit.Event{
			AdminID:    &sess.AdminID,
			Category:   model.CategoryAuth,
			Action:     audit.ActionLogout,
			TargetType: "session",
			TargetID:   sess.ID,
			IPAddress:  meta.IPAddress,
			UserAgent:  meta.UserAgent,
		})
	}
	return nil
}

// InvalidateAllSessions ends every active session of adminID and returns how
// many were ended.
func (s *AuthService) InvalidateAllSessions(ctx context.Context, adminID int64) (int64, error) {
	return s.store.DeactivateAdminSessions(ctx, adminID)
}
