package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agora-social/agora-admin/internal/async"
	"github.com/agora-social/agora-admin/internal/audit"
	"github.com/agora-social/agora-admin/internal/config"
	"github.com/agora-social/agora-admin/internal/handler"
	"github.com/agora-social/agora-admin/internal/ratelimit"
	"github.com/agora-social/agora-admin/internal/server"
	"github.com/agora-social/agora-admin/internal/server/middleware"
	"github.com/agora-social/agora-admin/internal/service"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the admin API server",
		Long:  "Start the HTTP server that exposes the admin login, session and audit endpoints.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Development mode (debug logging, non-Secure cookie)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(ctx context.Context, dev bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadSettings(viper.GetViper())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dev {
		cfg.Logging.Level = "debug"
		cfg.Auth.CookieSecure = false
	}
	logger := newLogger(cfg.Logging, os.Stderr)

	// 1. Store
	store, err := openConfigStore(cfg)
	if err != nil {
		return fmt.Errorf("init config store: %w", err)
	}
	defer store.Close()
	logger.Info("config store initialized", "driver", store.Dialect())

	// 2. Background writers: session touches and the audit log
	touches := async.New(async.Options{Name: "session_touch", Logger: logger})
	defer touches.Close()
	go logTaskErrors(logger, touches.Errors())

	auditLog := audit.NewLogger(store, audit.Options{BufferSize: cfg.Audit.BufferSize, Logger: logger})
	go logTaskErrors(logger, auditLog.Errors())

	// 3. Auth core
	opts, err := authOptions(cfg, touches, logger)
	if err != nil {
		auditLog.Close()
		return err
	}
	authSvc := service.NewAuthService(store, auditLog, opts)

	// 4. First run: built-in roles, admin hint
	roles, err := store.ListRoles(ctx)
	if err != nil {
		auditLog.Close()
		return fmt.Errorf("list roles: %w", err)
	}
	if len(roles) == 0 {
		created, err := authSvc.SeedRoles(ctx)
		if err != nil {
			auditLog.Close()
			return fmt.Errorf("seed roles: %w", err)
		}
		logger.Info("seeded built-in roles", "roles", created)
	}
	hasAdmin, err := store.HasAnyAdmin(ctx)
	if err != nil {
		logger.Warn("failed to check for admin", "error", err)
	}
	if !hasAdmin {
		logger.Warn("no admin account found - run: agora-admin admin create --email you@example.com --role super_admin")
	}

	// 5. HTTP server
	srvCfg, err := serverConfig(cfg)
	if err != nil {
		auditLog.Close()
		return err
	}
	srv := server.New(srvCfg, store, authSvc, auditLog, logger)

	fmt.Printf("→ agora-admin %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()

	return srv.ListenAndServe()
}

// serverConfig translates the server and rate_limit sections.
func serverConfig(cfg *config.YAMLConfig) (server.Config, error) {
	shutdown, err := config.ParseDuration(cfg.Server.ShutdownTimeout, server.DefaultConfig().ShutdownTimeout)
	if err != nil {
		return server.Config{}, fmt.Errorf("server.shutdown_timeout: %w", err)
	}
	window, err := config.ParseDuration(cfg.RateLimit.Window, 0)
	if err != nil {
		return server.Config{}, fmt.Errorf("rate_limit.window: %w", err)
	}
	loginWindow, err := config.ParseDuration(cfg.RateLimit.LoginWindow, 0)
	if err != nil {
		return server.Config{}, fmt.Errorf("rate_limit.login_window: %w", err)
	}

	// One limiter instance serves both the guard and login; their keys
	// carry distinct prefixes.
	limiter := ratelimit.NewMemory(ratelimit.WithSweepThreshold(cfg.RateLimit.SweepThreshold))

	return server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: shutdown,
		CORSOrigins:     cfg.Server.CORS.Origins,
		MaxBodySize:     cfg.Server.MaxBodyBytes,
		TrustProxy:      cfg.Server.TrustProxy,
		GlobalPerMinute: cfg.RateLimit.GlobalPerMinute,
		Version:         versionString(),
		Handler: handler.Config{
			CookieName:   cfg.Auth.CookieName,
			CookieSecure: cfg.Auth.CookieSecure,
			LoginLimiter: limiter,
			LoginLimit:   cfg.RateLimit.LoginRequests,
			LoginWindow:  loginWindow,
		},
		Guard: middleware.GuardConfig{
			Limiter: limiter,
			Limit:   cfg.RateLimit.Requests,
			Window:  window,
		},
	}, nil
}

func logTaskErrors(logger *slog.Logger, errs <-chan async.TaskError) {
	for te := range errs {
		logger.Warn("background task failed", "task", te.Name, "error", te.Err)
	}
}
