package model

import "time"

// AdminSession is a server-side record of an issued bearer token. Only the
// SHA-256 hash of the token is persisted.
type AdminSession struct {
	ID                string    `json:"id" db:"id"`
	AdminID           int64     `json:"admin_id" db:"admin_id"`
	TokenHash         string    `json:"-" db:"token_hash"`
	IPAddress         string    `json:"ip_address" db:"ip_address"`
	UserAgent         string    `json:"user_agent" db:"user_agent"`
	DeviceFingerprint string    `json:"device_fingerprint,omitempty" db:"device_fingerprint"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	ExpiresAt         time.Time `json:"expires_at" db:"expires_at"` // absolute, never extended
	LastActivityAt    time.Time `json:"last_activity_at" db:"last_activity_at"`
	IsActive          bool      `json:"is_active" db:"is_active"`
}

// Expired reports whether the session's absolute lifetime has elapsed.
func (s *AdminSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
