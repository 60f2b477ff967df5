package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/agora-social/agora-admin/internal/async"
	"github.com/agora-social/agora-admin/internal/audit"
	"github.com/agora-social/agora-admin/internal/config"
	"github.com/agora-social/agora-admin/internal/model"
	"github.com/agora-social/agora-admin/internal/service"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the SQLite data directory from --data-dir,
// store.data_dir (file or AGORA_STORE_DATA_DIR), or ~/.agora-admin.
func resolveDataDir(cfg *config.YAMLConfig) string {
	if dataDir != "" {
		return dataDir
	}
	if cfg != nil && cfg.Store.DataDir != "" {
		return cfg.Store.DataDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".agora-admin")
}

// openConfigStore opens the store selected by the configuration.
func openConfigStore(cfg *config.YAMLConfig) (*config.Store, error) {
	switch cfg.Store.Driver {
	case "", config.DialectSQLite:
		if cfg.Store.DSN != "" {
			return config.Open(config.DialectSQLite, cfg.Store.DSN)
		}
		return config.NewStore(resolveDataDir(cfg))
	case config.DialectPostgres, config.DialectMySQL:
		if cfg.Store.DSN == "" {
			return nil, fmt.Errorf("store.dsn is required for driver %q", cfg.Store.Driver)
		}
		return config.Open(cfg.Store.Driver, cfg.Store.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

// cliEnv bundles what an offline admin command needs. close drains the audit
// queue before closing the store.
type cliEnv struct {
	cfg   *config.YAMLConfig
	store *config.Store
	audit *audit.Logger
	auth  *service.AuthService
	log   *slog.Logger
}

func openCLIEnv() (*cliEnv, error) {
	cfg, err := loadSettings(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Logging, os.Stderr)

	store, err := openConfigStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open config store: %w", err)
	}
	auditLog := audit.NewLogger(store, audit.Options{BufferSize: cfg.Audit.BufferSize, Logger: logger})

	opts, err := authOptions(cfg, nil, logger)
	if err != nil {
		auditLog.Close()
		store.Close()
		return nil, err
	}
	return &cliEnv{
		cfg:   cfg,
		store: store,
		audit: auditLog,
		auth:  service.NewAuthService(store, auditLog, opts),
		log:   logger,
	}, nil
}

func (e *cliEnv) close() {
	e.audit.Close()
	e.store.Close()
}

// record writes an admin-management audit entry attributed to the local
// operator.
func (e *cliEnv) record(ctx context.Context, action string, target *model.AdminUser, details map[string]any) {
	e.audit.Log(ctx, audit.Event{
		ActorEmail: operator(),
		Category:   model.CategoryAdminManagement,
		Action:     action,
		TargetType: "admin",
		TargetID:   fmt.Sprint(target.ID),
		Details:    details,
		Reason:     "cli",
		UserAgent:  "agora-admin-cli/" + versionString(),
	})
}

// adminByEmail resolves an admin or returns a readable error.
func (e *cliEnv) adminByEmail(ctx context.Context, email string) (*model.AdminUser, error) {
	admin, err := e.store.GetAdminByEmail(ctx, email)
	if errors.Is(err, config.ErrNotFound) {
		return nil, fmt.Errorf("no admin with email %q", email)
	}
	return admin, err
}

// authOptions translates the auth section of the configuration.
func authOptions(cfg *config.YAMLConfig, touches *async.Queue, logger *slog.Logger) (service.Options, error) {
	ttl, err := config.ParseDuration(cfg.Auth.SessionTTL, service.DefaultSessionTTL)
	if err != nil {
		return service.Options{}, fmt.Errorf("auth.session_ttl: %w", err)
	}
	lockout, err := config.ParseDuration(cfg.Auth.LockoutDuration, service.DefaultLockoutDuration)
	if err != nil {
		return service.Options{}, fmt.Errorf("auth.lockout_duration: %w", err)
	}
	return service.Options{
		SessionTTL:       ttl,
		LockoutThreshold: cfg.Auth.LockoutThreshold,
		LockoutDuration:  lockout,
		TOTPIssuer:       cfg.Auth.TOTPIssuer,
		ConcealDisabled:  !cfg.Auth.DiscloseDisabled,
		Touches:          touches,
		Logger:           logger,
	}, nil
}

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// promptPassword reads a password from the terminal without echo. With
// confirm it asks twice and requires both entries to match.
func promptPassword(label string, confirm bool) (string, error) {
	fmt.Print(label + ": ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if !confirm {
		return string(pw), nil
	}

	fmt.Print("Confirm password: ")
	again, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	if string(pw) != string(again) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pw), nil
}

// operator names the local user running a CLI command, for audit entries.
func operator() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return "cli:" + u.Username
	}
	return "cli"
}

// parseSince accepts either a relative duration ("24h") or an RFC 3339
// timestamp.
func parseSince(value string, now time.Time) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		t := now.Add(-d)
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --since %q: use a duration like 24h or an RFC 3339 time", value)
	}
	return &t, nil
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
