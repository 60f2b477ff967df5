package model

import "time"

// AdminUser represents a privileged operator account. Password hashes and
// TOTP secrets are never serialized.
type AdminUser struct {
	ID                 int64      `json:"id" db:"id"`
	Email              string     `json:"email" db:"email"` // stored lower-cased
	PasswordHash       string     `json:"-" db:"password_hash"` // bcrypt hash, never expose
	Name               string     `json:"name" db:"name"`
	RoleID             int64      `json:"role_id" db:"role_id"`
	IsActive           bool       `json:"is_active" db:"is_active"`
	FailedAttempts     int        `json:"failed_attempts" db:"failed_attempts"`
	LockedUntil        *time.Time `json:"locked_until,omitempty" db:"locked_until"`
	TOTPSecret         *string    `json:"-" db:"totp_secret"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	LastLoginIP        string     `json:"last_login_ip,omitempty" db:"last_login_ip"`
	LastLoginUserAgent string     `json:"last_login_user_agent,omitempty" db:"last_login_user_agent"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// TOTPEnabled reports whether the admin has a second factor configured.
func (a *AdminUser) TOTPEnabled() bool {
	return a.TOTPSecret != nil && *a.TOTPSecret != ""
}

// IsLocked reports whether a lockout is in effect at the given instant.
func (a *AdminUser) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// Sanitized returns a copy with every secret-bearing field cleared, suitable
// for returning to a client.
func (a *AdminUser) Sanitized() *AdminUser {
	cp := *a
	cp.PasswordHash = ""
	cp.TOTPSecret = nil
	return &cp
}
