package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the top-level agora-admin configuration file. The
// same structure is filled from viper (file + AGORA_* env vars) at startup.
type YAMLConfig struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Logging   LoggingConfig   `yaml:"log" mapstructure:"log"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host" mapstructure:"host"`
	Port            int        `yaml:"port" mapstructure:"port"`
	ShutdownTimeout string     `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64      `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	TrustProxy      bool       `yaml:"trust_proxy" mapstructure:"trust_proxy"` // honor X-Forwarded-For / X-Real-IP
	CORS            CORSConfig `yaml:"cors" mapstructure:"cors"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins" mapstructure:"origins"`
}

// StoreConfig selects the database backing the store.
type StoreConfig struct {
	Driver  string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres, mysql
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"` // sqlite only
}

// AuthConfig controls credential, session, and second-factor settings.
type AuthConfig struct {
	SessionTTL       string `yaml:"session_ttl" mapstructure:"session_ttl"`
	LockoutThreshold int    `yaml:"lockout_threshold" mapstructure:"lockout_threshold"`
	LockoutDuration  string `yaml:"lockout_duration" mapstructure:"lockout_duration"`
	CookieName       string `yaml:"cookie_name" mapstructure:"cookie_name"`
	CookieSecure     bool   `yaml:"cookie_secure" mapstructure:"cookie_secure"`
	DiscloseDisabled bool   `yaml:"disclose_disabled" mapstructure:"disclose_disabled"`
	TOTPIssuer       string `yaml:"totp_issuer" mapstructure:"totp_issuer"`
}

// RateLimitConfig controls the guard's per-client limiter and the coarse
// router-wide limiter.
type RateLimitConfig struct {
	Requests        int    `yaml:"requests" mapstructure:"requests"`
	Window          string `yaml:"window" mapstructure:"window"`
	LoginRequests   int    `yaml:"login_requests" mapstructure:"login_requests"`
	LoginWindow     string `yaml:"login_window" mapstructure:"login_window"`
	SweepThreshold  int    `yaml:"sweep_threshold" mapstructure:"sweep_threshold"`
	GlobalPerMinute int    `yaml:"global_per_minute" mapstructure:"global_per_minute"`
}

// AuditConfig controls the asynchronous audit writer.
type AuditConfig struct {
	BufferSize int `yaml:"buffer_size" mapstructure:"buffer_size"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file on top of the
// defaults. Environment variables referenced as ${VAR_NAME} in the file are
// expanded before parsing.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	cfg := DefaultYAMLConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with production defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
			MaxBodyBytes:    1 << 20,
			CORS: CORSConfig{
				Origins: []string{"*"},
			},
		},
		Store: StoreConfig{
			Driver: DialectSQLite,
		},
		Auth: AuthConfig{
			SessionTTL:       "8h",
			LockoutThreshold: 5,
			LockoutDuration:  "30m",
			CookieName:       "agora_admin_session",
			CookieSecure:     true,
			DiscloseDisabled: true,
			TOTPIssuer:       "Agora Admin",
		},
		RateLimit: RateLimitConfig{
			Requests:        120,
			Window:          "1m",
			LoginRequests:   10,
			LoginWindow:     "15m",
			SweepThreshold:  10000,
			GlobalPerMinute: 600,
		},
		Audit: AuditConfig{
			BufferSize: 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	data, err := yaml.Marshal(DefaultYAMLConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ParseDuration parses a duration setting, falling back to def when the value
// is empty. Invalid values are reported rather than silently replaced.
func ParseDuration(value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", value)
	}
	return d, nil
}
