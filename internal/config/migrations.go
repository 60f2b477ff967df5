package config

import (
	"fmt"
	"strings"
)

func (s *Store) migrate() error {
	var migrations []string
	switch s.dialect {
	case DialectPostgres:
		migrations = postgresMigrations
	case DialectMySQL:
		migrations = mysqlMigrations
	default:
		migrations = sqliteMigrations
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// ALTER TABLE ADD COLUMN fails if the column already exists;
			// treat "duplicate column" as a no-op for idempotent migrations.
			if strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS admin_roles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		permissions_json TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS admin_users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		role_id INTEGER NOT NULL REFERENCES admin_roles(id),
		is_active INTEGER NOT NULL DEFAULT 1,
		failed_attempts INTEGER NOT NULL DEFAULT 0 CHECK (failed_attempts >= 0),
		locked_until DATETIME,
		totp_secret TEXT,
		last_login_at DATETIME,
		last_login_ip TEXT NOT NULL DEFAULT '',
		last_login_user_agent TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS admin_sessions (
		id TEXT PRIMARY KEY,
		admin_id INTEGER NOT NULL REFERENCES admin_users(id),
		token_hash TEXT UNIQUE NOT NULL,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		device_fingerprint TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		last_activity_at DATETIME NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1
	)`,

	`CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		admin_id INTEGER,
		actor_email TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		action_type TEXT NOT NULL,
		target_type TEXT NOT NULL DEFAULT '',
		target_id TEXT NOT NULL DEFAULT '',
		details_json TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_admin_sessions_admin_id ON admin_sessions(admin_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_created_at ON audit_log(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_admin_id ON audit_log(admin_id)`,
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS admin_roles (
		id BIGSERIAL PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		permissions_json TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS admin_users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		role_id BIGINT NOT NULL REFERENCES admin_roles(id),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		failed_attempts INTEGER NOT NULL DEFAULT 0 CHECK (failed_attempts >= 0),
		locked_until TIMESTAMPTZ,
		totp_secret TEXT,
		last_login_at TIMESTAMPTZ,
		last_login_ip TEXT NOT NULL DEFAULT '',
		last_login_user_agent TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS admin_sessions (
		id TEXT PRIMARY KEY,
		admin_id BIGINT NOT NULL REFERENCES admin_users(id),
		token_hash TEXT UNIQUE NOT NULL,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		device_fingerprint TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		last_activity_at TIMESTAMPTZ NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	)`,

	`CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		admin_id BIGINT,
		actor_email TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		action_type TEXT NOT NULL,
		target_type TEXT NOT NULL DEFAULT '',
		target_id TEXT NOT NULL DEFAULT '',
		details_json TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_admin_sessions_admin_id ON admin_sessions(admin_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_created_at ON audit_log(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_admin_id ON audit_log(admin_id)`,
}

// MySQL cannot index unbounded TEXT, so keyed columns are VARCHAR.
var mysqlMigrations = []string{
	`CREATE TABLE IF NOT EXISTS admin_roles (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(128) UNIQUE NOT NULL,
		description TEXT NOT NULL,
		permissions_json TEXT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS admin_users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(255) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		name VARCHAR(255) NOT NULL DEFAULT '',
		role_id BIGINT NOT NULL,
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		failed_attempts INT NOT NULL DEFAULT 0,
		locked_until DATETIME(6) NULL,
		totp_secret VARCHAR(255) NULL,
		last_login_at DATETIME(6) NULL,
		last_login_ip VARCHAR(64) NOT NULL DEFAULT '',
		last_login_user_agent VARCHAR(512) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		FOREIGN KEY (role_id) REFERENCES admin_roles(id)
	)`,

	`CREATE TABLE IF NOT EXISTS admin_sessions (
		id VARCHAR(36) PRIMARY KEY,
		admin_id BIGINT NOT NULL,
		token_hash CHAR(64) UNIQUE NOT NULL,
		ip_address VARCHAR(64) NOT NULL DEFAULT '',
		user_agent VARCHAR(512) NOT NULL DEFAULT '',
		device_fingerprint VARCHAR(255) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		expires_at DATETIME(6) NOT NULL,
		last_activity_at DATETIME(6) NOT NULL,
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		INDEX idx_admin_sessions_admin_id (admin_id),
		FOREIGN KEY (admin_id) REFERENCES admin_users(id)
	)`,

	`CREATE TABLE IF NOT EXISTS audit_log (
		id VARCHAR(36) PRIMARY KEY,
		admin_id BIGINT NULL,
		actor_email VARCHAR(255) NOT NULL DEFAULT '',
		category VARCHAR(32) NOT NULL,
		action_type VARCHAR(64) NOT NULL,
		target_type VARCHAR(64) NOT NULL DEFAULT '',
		target_id VARCHAR(128) NOT NULL DEFAULT '',
		details_json TEXT NOT NULL,
		reason TEXT NOT NULL,
		ip_address VARCHAR(64) NOT NULL DEFAULT '',
		user_agent VARCHAR(512) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		INDEX idx_audit_log_created_at (created_at),
		INDEX idx_audit_log_admin_id (admin_id)
	)`,
}
