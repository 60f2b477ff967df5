package middleware

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/agora-social/agora-admin/internal/audit"
	"github.com/agora-social/agora-admin/internal/model"
	"github.com/agora-social/agora-admin/internal/ratelimit"
	"github.com/agora-social/agora-admin/internal/rbac"
	"github.com/agora-social/agora-admin/internal/service"
)

type contextKeyAuth string

// AuthContextKey is the context key for the validated *service.AuthContext.
const AuthContextKey contextKeyAuth = "auth_context"

// GetAuthContext returns the principal attached by Guard, or nil.
func GetAuthContext(ctx context.Context) *service.AuthContext {
	if ac, ok := ctx.Value(AuthContextKey).(*service.AuthContext); ok {
		return ac
	}
	return nil
}

// GuardedHandler is a handler that runs only for an authenticated admin.
type GuardedHandler func(w http.ResponseWriter, r *http.Request, ac *service.AuthContext)

// SessionValidator resolves a session token. *service.AuthService satisfies it.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*service.AuthContext, error)
}

// GuardConfig configures a Guard.
type GuardConfig struct {
	CookieName string

	// Limiter, Limit and Window throttle guarded requests per client IP.
	// A nil Limiter disables throttling.
	Limiter ratelimit.Limiter
	Limit   int
	Window  time.Duration

	Logger *slog.Logger
}

// Guard wraps admin handlers with authentication, authorization, rate
// limiting, panic recovery and the security header set.
type Guard struct {
	sessions SessionValidator
	audit    *audit.Logger
	cfg      GuardConfig
	logger   *slog.Logger
}

// NewGuard creates a Guard. auditLog may be nil.
func NewGuard(sessions SessionValidator, auditLog *audit.Logger, cfg GuardConfig) *Guard {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 120
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Guard{sessions: sessions, audit: auditLog, cfg: cfg, logger: cfg.Logger}
}

// Wrap returns h guarded by the full check sequence. Every permission in
// required must be granted; with none, any authenticated admin passes.
func (g *Guard) Wrap(h GuardedHandler, required ...rbac.Permission) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ApplySecurityHeaders(w.Header())
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		defer g.recover(ww, r)

		if g.cfg.Limiter != nil {
			d := g.cfg.Limiter.Allow("guard:"+ClientIP(r), g.cfg.Limit, g.cfg.Window)
			if !d.Allowed {
				WriteRateLimited(ww, d.RetryAfter)
				return
			}
		}

		ac, err := g.sessions.ValidateSession(r.Context(), ExtractToken(r.Header, g.cfg.CookieName))
		if err != nil {
			if errors.Is(err, service.ErrSessionInvalid) {
				WriteError(ww, http.StatusUnauthorized, "Authentication required", nil)
				return
			}
			g.logger.Error("session validation failed", "error", err, "request_id", GetRequestID(r.Context()))
			WriteError(ww, http.StatusInternalServerError, "Internal server error", nil)
			return
		}

		if p, missing := rbac.Missing(ac.Role.Permissions, required...); missing {
			meta := RequestMeta(r)
			g.audit.Log(r.Context(), audit.Event{
				AdminID:    &ac.Admin.ID,
				ActorEmail: ac.Admin.Email,
				Category:   categoryFor(p),
				Action:     audit.ActionAccessDenied,
				TargetType: "endpoint",
				TargetID:   r.Method + " " + r.URL.Path,
				Details:    map[string]any{"permission": p.String(), "role": ac.Role.Name},
				IPAddress:  meta.IPAddress,
				UserAgent:  meta.UserAgent,
			})
			WriteError(ww, http.StatusForbidden, "Permission denied: "+p.String()+" is required",
				map[string]interface{}{"permission": p.String()})
			return
		}

		annotateAdmin(r.Context(), ac.Admin.ID)
		ctx := context.WithValue(r.Context(), AuthContextKey, ac)
		h(ww, r.WithContext(ctx), ac)
	})
}

func (g *Guard) recover(ww *responseWriter, r *http.Request) {
	rec := recover()
	if rec == nil {
		return
	}
	if rec == http.ErrAbortHandler {
		panic(rec)
	}
	g.logger.Error("panic in admin handler",
		"panic", rec,
		"path", r.URL.Path,
		"request_id", GetRequestID(r.Context()),
		"stack", string(debug.Stack()),
	)
	if !ww.wroteHeader {
		ApplySecurityHeaders(ww.Header())
		WriteError(ww, http.StatusInternalServerError, "Internal server error", nil)
	}
}

// categoryFor files a denial under the category of the resource it guarded.
func categoryFor(p rbac.Permission) model.AuditCategory {
	switch p.Resource {
	case "users":
		return model.CategoryUserManagement
	case "reports":
		return model.CategoryReportManagement
	case "content":
		return model.CategoryContentModeration
	case "system_settings":
		return model.CategorySystemSettings
	case "admin_management", "audit_logs":
		return model.CategoryAdminManagement
	default:
		return model.CategoryAuth
	}
}

// WriteRateLimited writes a 429 with a Retry-After hint in whole seconds.
func WriteRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	WriteError(w, http.StatusTooManyRequests, "Too many requests", map[string]interface{}{"retry_after": secs})
}
