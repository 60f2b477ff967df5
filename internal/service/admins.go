package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agora-social/agora-admin/internal/config"
	"github.com/agora-social/agora-admin/internal/model"
	"github.com/agora-social/agora-admin/internal/rbac"
)

// MinPasswordLength is enforced when passwords are set.
const MinPasswordLength = 12

// ErrWeakPassword is returned for passwords shorter than MinPasswordLength.
var ErrWeakPassword = fmt.Errorf("password must be at least %d characters", MinPasswordLength)

// CreateAdmin provisions an account with a hashed password in the named role.
func (s *AuthService) CreateAdmin(ctx context.Context, email, name, password, roleName string) (*model.AdminUser, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email %q", email)
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	role, err := s.store.GetRoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, fmt.Errorf("role %q does not exist", roleName)
		}
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	admin := &model.AdminUser{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		RoleID:       role.ID,
		IsActive:     true,
	}
	if err := s.store.CreateAdmin(ctx, admin); err != nil {
		return nil, err
	}
	return admin.Sanitized(), nil
}

// ChangePassword replaces an admin's password and ends all of their sessions.
func (s *AuthService) ChangePassword(ctx context.Context, adminID int64, password string) (int64, error) {
	if len(password) < MinPasswordLength {
		return 0, ErrWeakPassword
	}
	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}
	if err := s.store.SetAdminPassword(ctx, adminID, hash); err != nil {
		return 0, err
	}
	return s.InvalidateAllSessions(ctx, adminID)
}

// SetActive enables or disables an admin. Disabling also ends every session.
func (s *AuthService) SetActive(ctx context.Context, adminID int64, active bool) (int64, error) {
	if err := s.store.SetAdminActive(ctx, adminID, active); err != nil {
		return 0, err
	}
	if active {
		return 0, nil
	}
	return s.InvalidateAllSessions(ctx, adminID)
}

// Unlock clears a lockout before it elapses.
func (s *AuthService) Unlock(ctx context.Context, adminID int64) error {
	return s.store.ClearLockout(ctx, adminID)
}

// EnableTOTP generates and stores a second-factor secret for the admin. It
// refuses to overwrite an existing secret.
func (s *AuthService) EnableTOTP(ctx context.Context, adminID int64) (secret, uri string, err error) {
	admin, err := s.store.GetAdmin(ctx, adminID)
	if err != nil {
		return "", "", err
	}
	if admin.TOTPEnabled() {
		return "", "", ErrSecondFactorEnabled
	}

	secret, uri, err = GenerateTOTPSecret(s.opts.TOTPIssuer, admin.Email)
	if err != nil {
		return "", "", err
	}
	if err := s.store.SetAdminTOTPSecret(ctx, adminID, &secret); err != nil {
		return "", "", err
	}
	return secret, uri, nil
}

// DisableTOTP removes the admin's second factor.
func (s *AuthService) DisableTOTP(ctx context.Context, adminID int64) error {
	return s.store.SetAdminTOTPSecret(ctx, adminID, nil)
}

// SeedRoles creates every built-in role that does not exist yet and returns
// the names it created.
func (s *AuthService) SeedRoles(ctx context.Context) ([]string, error) {
	var created []string
	for _, tmpl := range rbac.DefaultRoles() {
		_, err := s.store.GetRoleByName(ctx, tmpl.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, config.ErrNotFound) {
			return created, err
		}
		role := &model.AdminRole{Name: tmpl.Name, Description: tmpl.Description, Permissions: tmpl.Permissions}
		if err := s.store.CreateRole(ctx, role); err != nil {
			return created, err
		}
		created = append(created, tmpl.Name)
	}
	return created, nil
}
