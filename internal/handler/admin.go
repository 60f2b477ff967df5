package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agora-social/agora-admin/internal/audit"
	"github.com/agora-social/agora-admin/internal/config"
	"github.com/agora-social/agora-admin/internal/model"
	"github.com/agora-social/agora-admin/internal/ratelimit"
	"github.com/agora-social/agora-admin/internal/server/middleware"
	"github.com/agora-social/agora-admin/internal/service"
)

// DefaultCookieName is the session cookie used when Config leaves it empty.
const DefaultCookieName = "agora_admin_session"

// Audit listing bounds.
const (
	defaultAuditLimit = 100
	maxAuditLimit     = 500
)

// Config configures an AdminHandler.
type Config struct {
	CookieName   string
	CookieSecure bool

	// LoginLimiter throttles login attempts per client IP. Nil disables it.
	LoginLimiter ratelimit.Limiter
	LoginLimit   int
	LoginWindow  time.Duration

	Logger *slog.Logger
}

// AdminHandler serves the admin authentication API: login, logout, the
// caller's own profile and second factor, session revocation and the audit
// ledger.
type AdminHandler struct {
	auth   *service.AuthService
	store  *config.Store
	audit  *audit.Logger
	cfg    Config
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler. auditLog may be nil.
func NewAdminHandler(auth *service.AuthService, store *config.Store, auditLog *audit.Logger, cfg Config) *AdminHandler {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.LoginLimit <= 0 {
		cfg.LoginLimit = 10
	}
	if cfg.LoginWindow <= 0 {
		cfg.LoginWindow = 15 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AdminHandler{
		auth:   auth,
		store:  store,
		audit:  auditLog,
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// CookieName returns the session cookie name in use.
func (h *AdminHandler) CookieName() string {
	return h.cfg.CookieName
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

type loginSuccess struct {
	Success bool             `json:"success"`
	Token   string           `json:"token"`
	Admin   *model.AdminUser `json:"admin"`
	Role    *model.AdminRole `json:"role"`
}

type loginChallenge struct {
	Requires2FA bool `json:"requires_2fa"`
}

type loginFailure struct {
	Success           bool   `json:"success"`
	Error             string `json:"error"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

func writeLoginFailure(w http.ResponseWriter, status int, message string, remaining *int) {
	writeJSON(w, status, loginFailure{Error: message, RemainingAttempts: remaining}) //nolint:errcheck
}

// Login authenticates an admin and opens a session.
// POST /api/v1/admin/session
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	meta := middleware.RequestMeta(r)

	if h.cfg.LoginLimiter != nil {
		d := h.cfg.LoginLimiter.Allow("login:"+meta.IPAddress, h.cfg.LoginLimit, h.cfg.LoginWindow)
		if !d.Allowed {
			secs := int((d.RetryAfter + time.Second - 1) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeLoginFailure(w, http.StatusTooManyRequests,
				fmt.Sprintf("Too many login attempts. Try again in %d seconds.", secs), nil)
			return
		}
	}

	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeLoginFailure(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeLoginFailure(w, http.StatusBadRequest, "Email and password are required", nil)
		return
	}

	res, err := h.auth.Login(r.Context(), service.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		TOTPCode: req.TOTPCode,
		Meta:     meta,
	})
	if err != nil {
		if r.Context().Err() != nil {
			// Client went away; nothing was issued.
			return
		}
		h.logger.Error("login failed", "error", err, "request_id", middleware.GetRequestID(r.Context()))
		writeLoginFailure(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}

	switch res.Outcome {
	case service.OutcomeRequiresSecondFactor:
		writeJSON(w, http.StatusOK, loginChallenge{Requires2FA: true}) //nolint:errcheck
		return
	case service.OutcomeFailure:
		h.writeLoginOutcome(w, res)
		return
	}

	http.SetCookie(w, h.sessionCookie(res.Token, res.Session.ExpiresAt))
	err = writeJSON(w, http.StatusOK, loginSuccess{
		Success: true,
		Token:   res.Token,
		Admin:   res.Admin,
		Role:    res.Role,
	})
	if err != nil {
		// The client never got the token; don't leave the session behind.
		ctx := context.WithoutCancel(r.Context())
		if ierr := h.auth.InvalidateSession(ctx, res.Token, meta); ierr != nil {
			h.logger.Error("invalidate undelivered session", "session_id", res.Session.ID, "error", ierr)
		}
		h.logger.Warn("login response not delivered", "session_id", res.Session.ID, "error", err)
	}
}

func (h *AdminHandler) writeLoginOutcome(w http.ResponseWriter, res *service.LoginResult) {
	switch {
	case errors.Is(res.Err, service.ErrAccountLocked):
		mins := res.LockedMinutes()
		w.Header().Set("Retry-After", strconv.Itoa(int(res.LockedFor.Seconds()+0.5)))
		writeLoginFailure(w, http.StatusLocked,
			fmt.Sprintf("Account is locked. Try again in %d minute%s.", mins, plural(mins)), nil)
	case errors.Is(res.Err, service.ErrAccountDisabled):
		writeLoginFailure(w, http.StatusForbidden, "Account is disabled", nil)
	case errors.Is(res.Err, service.ErrInvalidSecondFactorCode):
		writeLoginFailure(w, http.StatusUnauthorized, "Invalid 2FA code", nil)
	default:
		writeLoginFailure(w, http.StatusUnauthorized, "Invalid email or password", res.RemainingAttempts)
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func (h *AdminHandler) sessionCookie(token string, expires time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
	if token == "" {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	} else {
		c.Expires = expires
	}
	return c
}

// Logout ends the caller's session, if any, and clears the cookie. It
// succeeds for missing or already-ended sessions.
// DELETE /api/v1/admin/session
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.ExtractToken(r.Header, h.cfg.CookieName)
	if err := h.auth.InvalidateSession(r.Context(), token, middleware.RequestMeta(r)); err != nil {
		h.logger.Error("logout failed", "error", err, "request_id", middleware.GetRequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	http.SetCookie(w, h.sessionCookie("", time.Time{}))
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true}) //nolint:errcheck
}

// ---------------------------------------------------------------------------
// Current admin
// ---------------------------------------------------------------------------

type sessionInfo struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type meResponse struct {
	Admin   *model.AdminUser `json:"admin"`
	Role    *model.AdminRole `json:"role"`
	Session sessionInfo      `json:"session"`
}

// Me returns the authenticated admin, their role and the current session.
// GET /api/v1/admin/me
func (h *AdminHandler) Me(w http.ResponseWriter, r *http.Request, ac *service.AuthContext) {
	writeJSON(w, http.StatusOK, meResponse{ //nolint:errcheck
		Admin: ac.Admin,
		Role:  ac.Role,
		Session: sessionInfo{
			ID:             ac.Session.ID,
			CreatedAt:      ac.Session.CreatedAt,
			ExpiresAt:      ac.Session.ExpiresAt,
			LastActivityAt: ac.Session.LastActivityAt,
		},
	})
}

// EnableTwoFactor provisions a TOTP secret for the caller.
// POST /api/v1/admin/me/2fa
func (h *AdminHandler) EnableTwoFactor(w http.ResponseWriter, r *http.Request, ac *service.AuthContext) {
	secret, uri, err := h.auth.EnableTOTP(r.Context(), ac.Admin.ID)
	if errors.Is(err, service.ErrSecondFactorEnabled) {
		writeError(w, http.StatusConflict, "Two-factor authentication is already enabled")
		return
	}
	if err != nil {
		h.logger.Error("enable 2fa failed", "admin_id", ac.Admin.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	meta := middleware.RequestMeta(r)
	h.audit.Log(r.Context(), audit.Event{
		AdminID:    &ac.Admin.ID,
		ActorEmail: ac.Admin.Email,
		Category:   model.CategoryAuth,
		Action:     audit.Action2FAEnabled,
		TargetType: "admin",
		TargetID:   strconv.FormatInt(ac.Admin.ID, 10),
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	})
	writeJSON(w, http.StatusOK, map[string]string{"secret": secret, "otpauth_url": uri}) //nolint:errcheck
}

// ---------------------------------------------------------------------------
// Admin management
// ---------------------------------------------------------------------------

// RevokeSessions ends every session of the target admin.
// POST /api/v1/admin/admins/{adminId}/sessions/revoke
func (h *AdminHandler) RevokeSessions(w http.ResponseWriter, r *http.Request, ac *service.AuthContext) {
	id, err := strconv.ParseInt(chi.URLParam(r, "adminId"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid admin ID")
		return
	}
	target, err := h.store.GetAdmin(r.Context(), id)
	if errors.Is(err, config.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Admin not found")
		return
	}
	if err != nil {
		h.logger.Error("lookup admin failed", "admin_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	n, err := h.auth.InvalidateAllSessions(r.Context(), target.ID)
	if err != nil {
		h.logger.Error("revoke sessions failed", "admin_id", target.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	meta := middleware.RequestMeta(r)
	h.audit.Log(r.Context(), audit.Event{
		AdminID:    &ac.Admin.ID,
		ActorEmail: ac.Admin.Email,
		Category:   model.CategoryAdminManagement,
		Action:     audit.ActionSessionsRevoked,
		TargetType: "admin",
		TargetID:   strconv.FormatInt(target.ID, 10),
		Details:    map[string]any{"sessions": n, "target_email": target.Email},
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "revoked": n}) //nolint:errcheck
}

// ListAudit returns audit entries, newest first. Supported filters:
// category, admin_id, since (RFC 3339) and limit.
// GET /api/v1/admin/audit
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request, _ *service.AuthContext) {
	filter := model.AuditFilter{
		Limit: clampInt(queryInt(r, "limit", defaultAuditLimit), 1, maxAuditLimit),
	}

	if c := queryString(r, "category"); c != "" {
		filter.Category = model.AuditCategory(c)
		if !filter.Category.Valid() {
			writeError(w, http.StatusBadRequest, "Unknown audit category: "+c)
			return
		}
	}
	if v := queryString(r, "admin_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid admin_id")
			return
		}
		filter.AdminID = &id
	}
	since, err := queryTime(r, "since")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid since: expected RFC 3339 timestamp")
		return
	}
	filter.Since = since

	entries, err := h.store.ListAuditEntries(r.Context(), filter)
	if err != nil {
		h.logger.Error("list audit entries failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if entries == nil {
		entries = []model.AuditLogEntry{}
	}
	writeJSON(w, http.StatusOK, model.ListResponse{ //nolint:errcheck
		Resource: entries,
		Meta:     &model.ResponseMeta{Count: len(entries), Limit: filter.Limit},
	})
}
