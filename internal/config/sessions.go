package config

import (
	"context"
	"fmt"
	"time"

	"github.com/agora-social/agora-admin/internal/model"
)

// CreateSession inserts a new session row. The caller supplies the ID and the
// token hash; the plaintext token never reaches the store.
func (s *Store) CreateSession(ctx context.Context, sess *model.AdminSession) error {
	const q = `INSERT INTO admin_sessions
		(id, admin_id, token_hash, ip_address, user_agent, device_fingerprint,
		 created_at, expires_at, last_activity_at, is_active)
		VALUES
		(:id, :admin_id, :token_hash, :ip_address, :user_agent, :device_fingerprint,
		 :created_at, :expires_at, :last_activity_at, :is_active)`

	if _, err := s.db.NamedExecContext(ctx, q, sess); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSessionByTokenHash returns the session whose token hashes to hash,
// regardless of its active flag or expiry. Callers decide validity.
func (s *Store) GetSessionByTokenHash(ctx context.Context, hash string) (*model.AdminSession, error) {
	var sess model.AdminSession
	if err := s.db.GetContext(ctx, &sess, s.db.Rebind("SELECT * FROM admin_sessions WHERE token_hash = ?"), hash); err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session by hash: %w", err)
	}
	return &sess, nil
}

// ListAdminSessions returns every session ever issued to an admin, newest
// first.
func (s *Store) ListAdminSessions(ctx context.Context, adminID int64) ([]model.AdminSession, error) {
	var sessions []model.AdminSession
	err := s.db.SelectContext(ctx, &sessions,
		s.db.Rebind("SELECT * FROM admin_sessions WHERE admin_id = ? ORDER BY created_at DESC"), adminID)
	if err != nil {
		return nil, fmt.Errorf("list admin sessions: %w", err)
	}
	return sessions, nil
}

// TouchSession records activity on a session. expires_at is never modified.
func (s *Store) TouchSession(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE admin_sessions SET last_activity_at = ? WHERE id = ?"), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch session rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateSessionByTokenHash revokes the session matching hash. It returns
// the number of sessions flipped (0 or 1).
func (s *Store) DeactivateSessionByTokenHash(ctx context.Context, hash string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE admin_sessions SET is_active = ? WHERE token_hash = ? AND is_active = ?"),
		false, hash, true)
	if err != nil {
		return 0, fmt.Errorf("deactivate session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate session rows affected: %w", err)
	}
	return n, nil
}

// DeactivateAdminSessions revokes every active session of an admin and
// returns how many were flipped.
func (s *Store) DeactivateAdminSessions(ctx context.Context, adminID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE admin_sessions SET is_active = ? WHERE admin_id = ? AND is_active = ?"),
		false, adminID, true)
	if err != nil {
		return 0, fmt.Errorf("deactivate admin sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate admin sessions rows affected: %w", err)
	}
	return n, nil
}
