package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agora-social/agora-admin/internal/async"
	"github.com/agora-social/agora-admin/internal/audit"
	"github.com/agora-social/agora-admin/internal/config"
	"github.com/agora-social/agora-admin/internal/model"
	"github.com/agora-social/agora-admin/internal/rbac"
)

// Defaults applied by NewAuthService to zero-valued Options.
const (
	DefaultSessionTTL       = 8 * time.Hour
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 30 * time.Minute
	DefaultTOTPIssuer       = "Agora Admin"
)

// Options tune the auth core.
type Options struct {
	SessionTTL       time.Duration
	LockoutThreshold int
	LockoutDuration  time.Duration
	TOTPIssuer       string

	// ConcealDisabled makes a disabled account look like a wrong password
	// unless the caller supplied the correct one.
	ConcealDisabled bool

	// Touches runs last-activity updates in the background. When nil the
	// update happens inline and its failure is only logged.
	Touches *async.Queue

	Logger *slog.Logger
	Clock  func() time.Time
}

// RequestMeta describes the client behind a request.
type RequestMeta struct {
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
}

// AuthContext is the principal attached to a validated request.
type AuthContext struct {
	Admin   *model.AdminUser // secrets stripped
	Role    *model.AdminRole
	Session *model.AdminSession
}

// Can reports whether the principal's role grants action on resource.
func (a *AuthContext) Can(resource, action string) bool {
	if a == nil || a.Role == nil {
		return false
	}
	return rbac.HasPermission(a.Role.Permissions, resource, action)
}

// Outcome classifies a login attempt.
type Outcome int

const (
	OutcomeFailure Outcome = iota
	OutcomeSuccess
	OutcomeRequiresSecondFactor
)

// LoginRequest is one credential submission.
type LoginRequest struct {
	Email    string
	Password string
	TOTPCode string
	Meta     RequestMeta
}

// LoginResult is the outcome of Login. On failure Err holds one of the
// package's sentinel errors.
type LoginResult struct {
	Outcome Outcome
	Err     error

	// RemainingAttempts is set after a wrong password.
	RemainingAttempts *int
	// LockedFor is set when the account is locked.
	LockedFor time.Duration

	// Set on success only. Token is the plaintext session token and is
	// never available again.
	Token   string
	Session *model.AdminSession
	Admin   *model.AdminUser
	Role    *model.AdminRole
}

// LockedMinutes is LockedFor rounded up to whole minutes.
func (r *LoginResult) LockedMinutes() int {
	if r.LockedFor <= 0 {
		return 0
	}
	return int((r.LockedFor + time.Minute - 1) / time.Minute)
}

// AuthService verifies admin credentials and manages sessions.
type AuthService struct {
	store  *config.Store
	audit  *audit.Logger
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewAuthService creates the auth core. auditLog may be nil.
func NewAuthService(store *config.Store, auditLog *audit.Logger, opts Options) *AuthService {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.LockoutThreshold <= 0 {
		opts.LockoutThreshold = DefaultLockoutThreshold
	}
	if opts.LockoutDuration <= 0 {
		opts.LockoutDuration = DefaultLockoutDuration
	}
	if opts.TOTPIssuer == "" {
		opts.TOTPIssuer = DefaultTOTPIssuer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &AuthService{
		store:  store,
		audit:  auditLog,
		opts:   opts,
		logger: opts.Logger,
		now:    opts.Clock,
	}
}

func failure(err error) *LoginResult {
	return &LoginResult{Outcome: OutcomeFailure, Err: err}
}

// Login runs the full credential check. A non-nil error means the check
// could not be completed; every expected rejection is reported through the
// result instead.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	now := s.now()
	email := strings.TrimSpace(req.Email)

	ev := audit.Event{
		ActorEmail: email,
		Category:   model.CategoryAuth,
		IPAddress:  req.Meta.IPAddress,
		UserAgent:  req.Meta.UserAgent,
	}

	admin, err := s.store.GetAdminByEmail(ctx, email)
	if errors.Is(err, config.ErrNotFound) {
		burnPasswordCheck(req.Password)
		ev.Action, ev.Reason = audit.ActionLoginFailed, "unknown_email"
		s.audit.Log(ctx, ev)
		return failure(ErrInvalidCredentials), nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup admin: %w", err)
	}
	ev.AdminID = &admin.ID

	if admin.IsLocked(now) {
		ev.Action, ev.Reason = audit.ActionLoginBlocked, "account_locked"
		s.audit.Log(ctx, ev)
		return &LoginResult{Outcome: OutcomeFailure, Err: ErrAccountLocked, LockedFor: admin.LockedUntil.Sub(now)}, nil
	}

	if !admin.IsActive {
		ev.Action, ev.Reason = audit.ActionLoginFailed, "account_disabled"
		s.audit.Log(ctx, ev)
		if s.opts.ConcealDisabled && !VerifyPassword(req.Password, admin.PasswordHash) {
			return failure(ErrInvalidCredentials), nil
		}
		return failure(ErrAccountDisabled), nil
	}

	// An elapsed lock starts a fresh round of attempts.
	if admin.LockedUntil != nil {
		if err := s.store.ClearLockout(ctx, admin.ID); err != nil {
			return nil, fmt.Errorf("clear elapsed lockout: %w", err)
		}
	}

	if !VerifyPassword(req.Password, admin.PasswordHash) {
		attempts, err := s.store.RecordFailedLogin(ctx, admin.ID, s.opts.LockoutThreshold, now.Add(s.opts.LockoutDuration))
		if err != nil {
			return nil, fmt.Errorf("record failed login: %w", err)
		}
		remaining := max(0, s.opts.LockoutThreshold-attempts)

		ev.Action, ev.Reason = audit.ActionLoginFailed, "bad_password"
		ev.Details = map[string]any{"attempts": attempts, "locked": remaining == 0}
		s.audit.Log(ctx, ev)
		return &LoginResult{Outcome: OutcomeFailure, Err: ErrInvalidCredentials, RemainingAttempts: &remaining}, nil
	}

	if admin.TOTPEnabled() {
		if strings.TrimSpace(req.TOTPCode) == "" {
			return &LoginResult{Outcome: OutcomeRequiresSecondFactor, Err: ErrSecondFactorRequired}, nil
		}
		if !VerifyTOTP(*admin.TOTPSecret, req.TOTPCode, now) {
			ev.Action, ev.Reason = audit.Action2FAFailed, "invalid_code"
			s.audit.Log(ctx, ev)
			return failure(ErrInvalidSecondFactorCode), nil
		}
	}

	role, err := s.store.GetRole(ctx, admin.RoleID)
	if err != nil {
		return nil, fmt.Errorf("load role %d: %w", admin.RoleID, err)
	}

	// The client may have gone away during the password check. Without a
	// live caller there is nobody to hand the token to, so stop here.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.store.RecordSuccessfulLogin(ctx, admin.ID, now, req.Meta.IPAddress, req.Meta.UserAgent); err != nil {
		return nil, fmt.Errorf("record successful login: %w", err)
	}
	admin.FailedAttempts = 0
	admin.LockedUntil = nil
	admin.LastLoginAt = &now
	admin.LastLoginIP = req.Meta.IPAddress
	admin.LastLoginUserAgent = req.Meta.UserAgent

	token, sess, err := s.CreateSession(ctx, admin.ID, req.Meta)
	if err != nil {
		return nil, err
	}

	ev.Action, ev.Reason = audit.ActionLoginSuccess, ""
	ev.TargetType, ev.TargetID = "session", sess.ID
	ev.Details = map[string]any{"session_id": sess.ID}
	s.audit.Log(ctx, ev)

	return &LoginResult{
		Outcome: OutcomeSuccess,
		Token:   token,
		Session: sess,
		Admin:   admin.Sanitized(),
		Role:    role,
	}, nil
}
