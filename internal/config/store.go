package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/agora-social/agora-admin/internal/model"
)

// Supported store dialects.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// Store persists admin accounts, roles, sessions, and the audit ledger. It
// runs on SQLite by default and on PostgreSQL or MySQL when opened with Open.
type Store struct {
	db      *sqlx.DB
	dialect string
}

// NewStore creates a SQLite-backed store in dataDir. Pass empty string for
// an in-memory database.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "agora-admin.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	return Open(DialectSQLite, dsn)
}

// Open connects to the given dialect ("sqlite", "postgres", or "mysql") and
// applies migrations.
func Open(dialect, dsn string) (*Store, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch dialect {
	case DialectSQLite:
		db, err = sqlx.Connect("sqlite", dsn)
		if err == nil {
			db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
			_, err = db.Exec("PRAGMA foreign_keys = ON")
		}
	case DialectPostgres:
		db, err = sqlx.Connect("pgx", dsn)
	case DialectMySQL:
		dsn, err = normalizeMySQLDSN(dsn)
		if err == nil {
			db, err = sqlx.Connect("mysql", dsn)
		}
	default:
		return nil, fmt.Errorf("unsupported store driver %q", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", dialect, err)
	}

	s := &Store{db: db, dialect: dialect}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s store: %w", dialect, err)
	}
	return s, nil
}

// normalizeMySQLDSN forces the options the store relies on: DATETIME columns
// scanned as time.Time, all times in UTC, and RowsAffected counting matched
// rather than changed rows.
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect returns the store's SQL dialect.
func (s *Store) Dialect() string {
	return s.dialect
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// insertID runs a named INSERT and returns the generated integer key.
// PostgreSQL has no LastInsertId, so it uses RETURNING instead.
func (s *Store) insertID(ctx context.Context, q string, arg interface{}) (int64, error) {
	if s.dialect == DialectPostgres {
		query, args, err := s.db.BindNamed(q+" RETURNING id", arg)
		if err != nil {
			return 0, err
		}
		var id int64
		if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	result, err := s.db.NamedExecContext(ctx, q, arg)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ---------------------------------------------------------------------------
// Roles
// ---------------------------------------------------------------------------

// roleRow maps 1:1 to the admin_roles table. The permission matrix is stored
// as JSON in permissions_json.
type roleRow struct {
	ID              int64     `db:"id"`
	Name            string    `db:"name"`
	Description     string    `db:"description"`
	PermissionsJSON string    `db:"permissions_json"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func roleRowFromModel(role *model.AdminRole) (roleRow, error) {
	perms := role.Permissions
	if perms == nil {
		perms = model.PermissionMatrix{}
	}
	b, err := json.Marshal(perms)
	if err != nil {
		return roleRow{}, fmt.Errorf("marshal permissions: %w", err)
	}
	return roleRow{
		ID:              role.ID,
		Name:            role.Name,
		Description:     role.Description,
		PermissionsJSON: string(b),
		CreatedAt:       role.CreatedAt,
		UpdatedAt:       role.UpdatedAt,
	}, nil
}

func (r roleRow) toModel() (*model.AdminRole, error) {
	perms := model.PermissionMatrix{}
	if r.PermissionsJSON != "" {
		if err := json.Unmarshal([]byte(r.PermissionsJSON), &perms); err != nil {
			return nil, fmt.Errorf("unmarshal permissions for role %q: %w", r.Name, err)
		}
	}
	return &model.AdminRole{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Permissions: perms,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

// CreateRole inserts a new role. The ID, CreatedAt, and UpdatedAt fields are
// populated after a successful insert.
func (s *Store) CreateRole(ctx context.Context, role *model.AdminRole) error {
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now

	row, err := roleRowFromModel(role)
	if err != nil {
		return err
	}

	const q = `INSERT INTO admin_roles (name, description, permissions_json, created_at, updated_at)
		VALUES (:name, :description, :permissions_json, :created_at, :updated_at)`

	id, err := s.insertID(ctx, q, row)
	if err != nil {
		return fmt.Errorf("insert role: %w", err)
	}
	role.ID = id
	return nil
}

// GetRole returns a role by ID.
func (s *Store) GetRole(ctx context.Context, id int64) (*model.AdminRole, error) {
	var row roleRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind("SELECT * FROM admin_roles WHERE id = ?"), id); err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return row.toModel()
}

// GetRoleByName returns a role by its unique name.
func (s *Store) GetRoleByName(ctx context.Context, name string) (*model.AdminRole, error) {
	var row roleRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind("SELECT * FROM admin_roles WHERE name = ?"), name); err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get role by name: %w", err)
	}
	return row.toModel()
}

// ListRoles returns all roles ordered by name.
func (s *Store) ListRoles(ctx context.Context) ([]model.AdminRole, error) {
	var rows []roleRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM admin_roles ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}

	roles := make([]model.AdminRole, 0, len(rows))
	for _, r := range rows {
		role, err := r.toModel()
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	return roles, nil
}

// SetRolePermissions replaces a role's permission matrix. Every admin holding
// the role sees the change on their next validated request.
func (s *Store) SetRolePermissions(ctx context.Context, id int64, perms model.PermissionMatrix) error {
	if perms == nil {
		perms = model.PermissionMatrix{}
	}
	b, err := json.Marshal(perms)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE admin_roles SET permissions_json = ?, updated_at = ? WHERE id = ?"),
		string(b), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update role permissions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update role permissions rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Admin users
// ---------------------------------------------------------------------------

// CreateAdmin inserts a new admin account. The email is stored lower-cased.
// The ID, CreatedAt, and UpdatedAt fields are populated after insert.
func (s *Store) CreateAdmin(ctx context.Context, admin *model.AdminUser) error {
	now := time.Now().UTC()
	admin.Email = normalizeEmail(admin.Email)
	admin.CreatedAt = now
	admin.UpdatedAt = now

	const q = `INSERT INTO admin_users
		(email, password_hash, name, role_id, is_active, failed_attempts, locked_until, totp_secret,
		 last_login_at, last_login_ip, last_login_user_agent, created_at, updated_at)
		VALUES
		(:email, :password_hash, :name, :role_id, :is_active, :failed_attempts, :locked_until, :totp_secret,
		 :last_login_at, :last_login_ip, :last_login_user_agent, :created_at, :updated_at)`

	id, err := s.insertID(ctx, q, admin)
	if err != nil {
		return fmt.Errorf("insert admin: %w", err)
	}
	admin.ID = id
	return nil
}

// GetAdmin returns an admin by ID.
func (s *Store) GetAdmin(ctx context.Context, id int64) (*model.AdminUser, error) {
	var admin model.AdminUser
	if err := s.db.GetContext(ctx, &admin, s.db.Rebind("SELECT * FROM admin_users WHERE id = ?"), id); err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return &admin, nil
}

// GetAdminByEmail returns an admin by email address, compared
// case-insensitively.
func (s *Store) GetAdminByEmail(ctx context.Context, email string) (*model.AdminUser, error) {
	var admin model.AdminUser
	err := s.db.GetContext(ctx, &admin,
		s.db.Rebind("SELECT * FROM admin_users WHERE LOWER(email) = ?"), normalizeEmail(email))
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin by email: %w", err)
	}
	return &admin, nil
}

// ListAdmins returns all admin accounts.
func (s *Store) ListAdmins(ctx context.Context) ([]model.AdminUser, error) {
	var admins []model.AdminUser
	if err := s.db.SelectContext(ctx, &admins, "SELECT * FROM admin_users ORDER BY email"); err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return admins, nil
}

// HasAnyAdmin reports whether at least one admin account exists.
func (s *Store) HasAnyAdmin(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM admin_users"); err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	return count > 0, nil
}

// RecordFailedLogin atomically increments failed_attempts and, when the new
// count reaches threshold, sets locked_until in the same statement. It returns
// the post-increment count. Concurrent calls for the same admin are never
// lost: each UPDATE holds the row until its transaction commits.
func (s *Store) RecordFailedLogin(ctx context.Context, id int64, threshold int, lockUntil time.Time) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// locked_until is assigned before failed_attempts: MySQL evaluates SET
	// clauses left to right, so this keeps the CASE reading the old count on
	// every dialect.
	const q = `UPDATE admin_users SET
		locked_until = CASE WHEN failed_attempts + 1 >= ? THEN ? ELSE locked_until END,
		failed_attempts = failed_attempts + 1,
		updated_at = ?
		WHERE id = ?`

	result, err := tx.ExecContext(ctx, tx.Rebind(q), threshold, lockUntil.UTC(), time.Now().UTC(), id)
	if err != nil {
		return 0, fmt.Errorf("increment failed attempts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("increment failed attempts rows affected: %w", err)
	}
	if n == 0 {
		return 0, ErrNotFound
	}

	var attempts int
	if err := tx.GetContext(ctx, &attempts, tx.Rebind("SELECT failed_attempts FROM admin_users WHERE id = ?"), id); err != nil {
		return 0, fmt.Errorf("read failed attempts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit failed attempts: %w", err)
	}
	return attempts, nil
}

// RecordSuccessfulLogin clears the lockout bookkeeping and stamps the
// last-login metadata.
func (s *Store) RecordSuccessfulLogin(ctx context.Context, id int64, at time.Time, ip, userAgent string) error {
	const q = `UPDATE admin_users SET
		failed_attempts = 0, locked_until = NULL,
		last_login_at = ?, last_login_ip = ?, last_login_user_agent = ?, updated_at = ?
		WHERE id = ?`

	result, err := s.db.ExecContext(ctx, s.db.Rebind(q), at.UTC(), ip, userAgent, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("record successful login: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record successful login rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearLockout resets failed_attempts and locked_until without touching the
// last-login metadata (operator unlock).
func (s *Store) ClearLockout(ctx context.Context, id int64) error {
	return s.updateAdmin(ctx, "clear lockout",
		"UPDATE admin_users SET failed_attempts = 0, locked_until = NULL, updated_at = ? WHERE id = ?",
		time.Now().UTC(), id)
}

// SetAdminActive enables or disables an admin account.
func (s *Store) SetAdminActive(ctx context.Context, id int64, active bool) error {
	return s.updateAdmin(ctx, "set admin active",
		"UPDATE admin_users SET is_active = ?, updated_at = ? WHERE id = ?",
		active, time.Now().UTC(), id)
}

// SetAdminTOTPSecret stores (or, with nil, removes) the admin's second-factor
// secret.
func (s *Store) SetAdminTOTPSecret(ctx context.Context, id int64, secret *string) error {
	return s.updateAdmin(ctx, "set admin totp secret",
		"UPDATE admin_users SET totp_secret = ?, updated_at = ? WHERE id = ?",
		secret, time.Now().UTC(), id)
}

// SetAdminPassword replaces the admin's password hash.
func (s *Store) SetAdminPassword(ctx context.Context, id int64, hash string) error {
	return s.updateAdmin(ctx, "set admin password",
		"UPDATE admin_users SET password_hash = ?, updated_at = ? WHERE id = ?",
		hash, time.Now().UTC(), id)
}

// SetAdminRole moves an admin to a different role.
func (s *Store) SetAdminRole(ctx context.Context, id, roleID int64) error {
	return s.updateAdmin(ctx, "set admin role",
		"UPDATE admin_users SET role_id = ?, updated_at = ? WHERE id = ?",
		roleID, time.Now().UTC(), id)
}

func (s *Store) updateAdmin(ctx context.Context, op, q string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
