package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/agora-social/agora-admin/internal/audit"
	"github.com/agora-social/agora-admin/internal/config"
	"github.com/agora-social/agora-admin/internal/model"
)

func TestMain(m *testing.M) {
	passwordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

const (
	testEmail    = "a@x.com"
	testPassword = "correct horse battery staple"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc   *AuthService
	store *config.Store
	audit *audit.Logger
	clock *testClock
	admin *model.AdminUser
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, tweak ...func(*Options)) *fixture {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	auditLog := audit.NewLogger(store, audit.Options{Logger: quietLogger()})
	t.Cleanup(auditLog.Close)

	clock := &testClock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	opts := Options{Logger: quietLogger(), Clock: clock.Now}
	for _, fn := range tweak {
		fn(&opts)
	}
	svc := NewAuthService(store, auditLog, opts)

	ctx := context.Background()
	if _, err := svc.SeedRoles(ctx); err != nil {
		t.Fatalf("SeedRoles: %v", err)
	}
	admin, err := svc.CreateAdmin(ctx, testEmail, "Alice", testPassword, "moderator")
	if err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	return &fixture{svc: svc, store: store, audit: auditLog, clock: clock, admin: admin}
}

func (f *fixture) login(t *testing.T, password, code string) *LoginResult {
	t.Helper()
	res, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    testEmail,
		Password: password,
		TOTPCode: code,
		Meta:     RequestMeta{IPAddress: "203.0.113.9", UserAgent: "test"},
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return res
}

func (f *fixture) reload(t *testing.T) *model.AdminUser {
	t.Helper()
	a, err := f.store.GetAdmin(context.Background(), f.admin.ID)
	if err != nil {
		t.Fatalf("GetAdmin: %v", err)
	}
	return a
}

// auditActions flushes the audit logger and returns the recorded action types,
// oldest first.
func (f *fixture) auditActions(t *testing.T) []model.AuditLogEntry {
	t.Helper()
	f.audit.Close()
	entries, err := f.store.ListAuditEntries(context.Background(), model.AuditFilter{})
	if err != nil {
		t.Fatalf("ListAuditEntries: %v", err)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries
}

// ---------------------------------------------------------------------------
// Passwords
// ---------------------------------------------------------------------------

func TestHashAndVerifyPassword(t *testing.T) {
	h1, err := HashPassword("s3cret-enough-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	h2, _ := HashPassword("s3cret-enough-pass")
	if h1 == h2 {
		t.Error("hashes of the same password should differ (fresh salt)")
	}
	if !VerifyPassword("s3cret-enough-pass", h1) || !VerifyPassword("s3cret-enough-pass", h2) {
		t.Error("expected both hashes to verify")
	}
	if VerifyPassword("wrong", h1) {
		t.Error("wrong password verified")
	}
	if VerifyPassword("anything", "not-a-hash") {
		t.Error("malformed hash verified")
	}
	if cost, _ := bcrypt.Cost([]byte(h1)); cost != passwordCost {
		t.Errorf("cost = %d, want %d", cost, passwordCost)
	}
}

// ---------------------------------------------------------------------------
// Login
// ---------------------------------------------------------------------------

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)

	res := f.login(t, testPassword, "")
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %v, err = %v", res.Outcome, res.Err)
	}
	if res.Token == "" || res.Session == nil {
		t.Fatal("expected token and session")
	}
	if res.Admin.PasswordHash != "" || res.Admin.TOTPSecret != nil {
		t.Error("admin returned with secrets")
	}
	if res.Role == nil || res.Role.Name != "moderator" {
		t.Errorf("role = %+v", res.Role)
	}

	stored := f.reload(t)
	if stored.LastLoginAt == nil || !stored.LastLoginAt.Equal(f.clock.Now()) {
		t.Errorf("last_login_at = %v", stored.LastLoginAt)
	}
	if stored.LastLoginIP != "203.0.113.9" {
		t.Errorf("last_login_ip = %q", stored.LastLoginIP)
	}

	ac, err := f.svc.ValidateSession(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if ac.Admin.ID != f.admin.ID || ac.Session.ID != res.Session.ID {
		t.Errorf("validated context = %+v", ac)
	}

	entries := f.auditActions(t)
	last := entries[len(entries)-1]
	if last.ActionType != audit.ActionLoginSuccess {
		t.Fatalf("last audit action = %q", last.ActionType)
	}
	if last.TargetID != res.Session.ID {
		t.Errorf("login audit references session %q, want %q", last.TargetID, res.Session.ID)
	}
}

func TestLoginEmailIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Login(context.Background(), LoginRequest{Email: "  A@X.COM ", Password: testPassword})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Errorf("outcome = %v, err = %v", res.Outcome, res.Err)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Login(context.Background(), LoginRequest{Email: "ghost@x.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Err != ErrInvalidCredentials {
		t.Errorf("err = %v, want ErrInvalidCredentials", res.Err)
	}
	if res.RemainingAttempts != nil {
		t.Error("unknown email must not report remaining attempts")
	}

	entries := f.auditActions(t)
	if len(entries) != 1 {
		t.Fatalf("got %d audit entries, want 1", len(entries))
	}
	if entries[0].AdminID != nil || entries[0].ActorEmail != "ghost@x.com" {
		t.Errorf("unknown-email audit entry = %+v", entries[0])
	}
}

func TestLoginWrongPasswordMatchesUnknownEmail(t *testing.T) {
	f := newFixture(t)
	wrong := f.login(t, "nope", "")
	unknown, _ := f.svc.Login(context.Background(), LoginRequest{Email: "ghost@x.com", Password: "nope"})
	if wrong.Err != unknown.Err {
		t.Errorf("wrong password err %v differs from unknown email err %v", wrong.Err, unknown.Err)
	}
}

func TestLoginLockoutScenario(t *testing.T) {
	f := newFixture(t)

	for i, want := range []int{4, 3, 2, 1, 0} {
		res := f.login(t, "wrong password", "")
		if res.Err != ErrInvalidCredentials {
			t.Fatalf("attempt %d: err = %v", i+1, res.Err)
		}
		if res.RemainingAttempts == nil || *res.RemainingAttempts != want {
			t.Fatalf("attempt %d: remaining = %v, want %d", i+1, res.RemainingAttempts, want)
		}
	}

	res := f.login(t, testPassword, "")
	if res.Err != ErrAccountLocked {
		t.Fatalf("6th attempt with correct password: err = %v, want ErrAccountLocked", res.Err)
	}
	if res.LockedMinutes() != 30 {
		t.Errorf("locked minutes = %d, want 30", res.LockedMinutes())
	}
	if got := f.reload(t).FailedAttempts; got != 5 {
		t.Errorf("locked attempt touched counters: %d", got)
	}

	f.clock.Advance(10*time.Minute + 30*time.Second)
	res = f.login(t, testPassword, "")
	if res.Err != ErrAccountLocked || res.LockedMinutes() != 20 {
		t.Errorf("mid-lock: err = %v, minutes = %d", res.Err, res.LockedMinutes())
	}

	f.clock.Advance(20 * time.Minute)
	res = f.login(t, testPassword, "")
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("after lock elapsed: outcome = %v, err = %v", res.Outcome, res.Err)
	}
}

func TestLoginAfterLockElapsesStartsFresh(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.login(t, "wrong password", "")
	}
	f.clock.Advance(31 * time.Minute)

	res := f.login(t, "wrong again", "")
	if res.RemainingAttempts == nil || *res.RemainingAttempts != 4 {
		t.Errorf("remaining after elapsed lock = %v, want 4", res.RemainingAttempts)
	}
}

func TestLoginSuccessResetsCounters(t *testing.T) {
	f := newFixture(t)
	f.login(t, "wrong", "")
	f.login(t, "wrong", "")
	if got := f.reload(t).FailedAttempts; got != 2 {
		t.Fatalf("failed_attempts = %d, want 2", got)
	}

	if res := f.login(t, testPassword, ""); res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %v", res.Outcome)
	}
	stored := f.reload(t)
	if stored.FailedAttempts != 0 || stored.LockedUntil != nil {
		t.Errorf("counters not reset: attempts=%d locked_until=%v", stored.FailedAttempts, stored.LockedUntil)
	}
}

func TestConcurrentFailedLoginsAreAllCounted(t *testing.T) {
	f := newFixture(t)
	f.login(t, "wrong", "") // initial = 1

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.svc.Login(context.Background(), LoginRequest{Email: testEmail, Password: "also wrong"}) //nolint:errcheck
		}()
	}
	wg.Wait()

	if got := f.reload(t).FailedAttempts; got != 3 {
		t.Errorf("failed_attempts = %d, want 3", got)
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.SetActive(context.Background(), f.admin.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	if res := f.login(t, "wrong", ""); res.Err != ErrAccountDisabled {
		t.Errorf("err = %v, want ErrAccountDisabled", res.Err)
	}
	if res := f.login(t, testPassword, ""); res.Err != ErrAccountDisabled {
		t.Errorf("err = %v, want ErrAccountDisabled", res.Err)
	}
	if got := f.reload(t).FailedAttempts; got != 0 {
		t.Errorf("disabled login touched counters: %d", got)
	}
}

func TestLoginDisabledAccountConcealed(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.ConcealDisabled = true })
	f.svc.SetActive(context.Background(), f.admin.ID, false) //nolint:errcheck

	if res := f.login(t, "wrong", ""); res.Err != ErrInvalidCredentials {
		t.Errorf("wrong password: err = %v, want ErrInvalidCredentials", res.Err)
	}
	if res := f.login(t, testPassword, ""); res.Err != ErrAccountDisabled {
		t.Errorf("right password: err = %v, want ErrAccountDisabled", res.Err)
	}
}

func TestLoginCancelledContextCreatesNoSession(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.svc.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword})
	if err == nil && res.Outcome == OutcomeSuccess {
		t.Fatal("login succeeded for a cancelled request")
	}
	sessions, _ := f.store.ListAdminSessions(context.Background(), f.admin.ID)
	if len(sessions) != 0 {
		t.Errorf("got %d sessions, want none", len(sessions))
	}
}

// ---------------------------------------------------------------------------
// Second factor during login
// ---------------------------------------------------------------------------

func TestLoginSecondFactor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	secret, _, err := f.svc.EnableTOTP(ctx, f.admin.ID)
	if err != nil {
		t.Fatalf("EnableTOTP: %v", err)
	}

	res := f.login(t, testPassword, "")
	if res.Outcome != OutcomeRequiresSecondFactor {
		t.Fatalf("outcome = %v, want RequiresSecondFactor", res.Outcome)
	}
	if res.Token != "" {
		t.Error("no token may be issued before the second factor")
	}
	if sessions, _ := f.store.ListAdminSessions(ctx, f.admin.ID); len(sessions) != 0 {
		t.Errorf("got %d sessions before second factor", len(sessions))
	}

	res = f.login(t, testPassword, "000000")
	if res.Err != ErrInvalidSecondFactorCode {
		t.Fatalf("err = %v, want ErrInvalidSecondFactorCode", res.Err)
	}
	if got := f.reload(t).FailedAttempts; got != 0 {
		t.Errorf("bad 2FA code counted as password failure: %d", got)
	}

	code := codeAt(t, secret, f.clock.Now())
	res = f.login(t, testPassword, code)
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %v, err = %v", res.Outcome, res.Err)
	}

	var sawFailed bool
	for _, e := range f.auditActions(t) {
		if e.ActionType == audit.Action2FAFailed {
			sawFailed = true
		}
	}
	if !sawFailed {
		t.Error("expected a 2fa_failed audit entry")
	}
}

func TestLoginWrongPasswordWithValidCode(t *testing.T) {
	f := newFixture(t)
	secret, _, _ := f.svc.EnableTOTP(context.Background(), f.admin.ID)

	res := f.login(t, "wrong", codeAt(t, secret, f.clock.Now()))
	if res.Err != ErrInvalidCredentials {
		t.Errorf("err = %v, want ErrInvalidCredentials", res.Err)
	}
	if got := f.reload(t).FailedAttempts; got != 1 {
		t.Errorf("failed_attempts = %d, want 1", got)
	}
}

// ---------------------------------------------------------------------------
// Account management
// ---------------------------------------------------------------------------

func TestCreateAdminValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateAdmin(ctx, "b@x.com", "Bob", "short", "support"); err != ErrWeakPassword {
		t.Errorf("weak password: err = %v", err)
	}
	if _, err := f.svc.CreateAdmin(ctx, "not-an-email", "Bob", testPassword, "support"); err == nil {
		t.Error("expected invalid email to be rejected")
	}
	if _, err := f.svc.CreateAdmin(ctx, "b@x.com", "Bob", testPassword, "no_such_role"); err == nil {
		t.Error("expected unknown role to be rejected")
	}
}

func TestSeedRolesIsIdempotent(t *testing.T) {
	f := newFixture(t) // already seeded once
	created, err := f.svc.SeedRoles(context.Background())
	if err != nil {
		t.Fatalf("SeedRoles: %v", err)
	}
	if len(created) != 0 {
		t.Errorf("second seed created %v", created)
	}
	roles, _ := f.store.ListRoles(context.Background())
	if len(roles) != 3 {
		t.Errorf("got %d roles, want 3", len(roles))
	}
}

func TestChangePasswordEndsSessions(t *testing.T) {
	f := newFixture(t)
	res := f.login(t, testPassword, "")

	n, err := f.svc.ChangePassword(context.Background(), f.admin.ID, "an entirely new passphrase")
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if n != 1 {
		t.Errorf("ended %d sessions, want 1", n)
	}
	if _, err := f.svc.ValidateSession(context.Background(), res.Token); err != ErrSessionInvalid {
		t.Errorf("old session still valid: %v", err)
	}
	if r := f.login(t, testPassword, ""); r.Err != ErrInvalidCredentials {
		t.Errorf("old password still accepted: %v", r.Err)
	}
	if r := f.login(t, "an entirely new passphrase", ""); r.Outcome != OutcomeSuccess {
		t.Errorf("new password rejected: %v", r.Err)
	}
}

func TestEnableTOTPTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, _, err := f.svc.EnableTOTP(ctx, f.admin.ID); err != nil {
		t.Fatalf("EnableTOTP: %v", err)
	}
	if _, _, err := f.svc.EnableTOTP(ctx, f.admin.ID); err != ErrSecondFactorEnabled {
		t.Errorf("err = %v, want ErrSecondFactorEnabled", err)
	}
	if err := f.svc.DisableTOTP(ctx, f.admin.ID); err != nil {
		t.Fatalf("DisableTOTP: %v", err)
	}
	if f.reload(t).TOTPEnabled() {
		t.Error("expected TOTP to be disabled")
	}
}

func TestUnlock(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.login(t, "wrong", "")
	}
	if err := f.svc.Unlock(context.Background(), f.admin.ID); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if res := f.login(t, testPassword, ""); res.Outcome != OutcomeSuccess {
		t.Errorf("login after unlock: %v", res.Err)
	}
}
