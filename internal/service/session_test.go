package service

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/agora-social/agora-admin/internal/async"
)

func TestCreateSessionToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, sess, err := f.svc.CreateSession(ctx, f.admin.ID, RequestMeta{IPAddress: "198.51.100.4", UserAgent: "cli"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("token is not base64url: %v", err)
	}
	if len(raw) != 32 {
		t.Errorf("token carries %d bytes of entropy, want 32", len(raw))
	}
	if sess.TokenHash == token || sess.TokenHash != HashToken(token) {
		t.Error("session must store the token hash, not the token")
	}
	if !sess.ExpiresAt.Equal(f.clock.Now().Add(8 * time.Hour)) {
		t.Errorf("expires_at = %v, want created + 8h", sess.ExpiresAt)
	}

	stored, err := f.store.GetSessionByTokenHash(ctx, HashToken(token))
	if err != nil {
		t.Fatalf("GetSessionByTokenHash: %v", err)
	}
	if stored.IPAddress != "198.51.100.4" || stored.UserAgent != "cli" {
		t.Errorf("request metadata not stored: %+v", stored)
	}

	other, _, _ := f.svc.CreateSession(ctx, f.admin.ID, RequestMeta{})
	if other == token {
		t.Error("two sessions received the same token")
	}
}

func TestValidateSessionAbsoluteExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, sess, _ := f.svc.CreateSession(ctx, f.admin.ID, RequestMeta{})

	f.clock.Advance(7*time.Hour + 59*time.Minute)
	if _, err := f.svc.ValidateSession(ctx, token); err != nil {
		t.Fatalf("session rejected before expiry: %v", err)
	}

	f.clock.Advance(2 * time.Minute) // T + 8h01m
	if _, err := f.svc.ValidateSession(ctx, token); err != ErrSessionInvalid {
		t.Fatalf("err = %v, want ErrSessionInvalid", err)
	}

	stored, _ := f.store.GetSessionByTokenHash(ctx, sess.TokenHash)
	if !stored.IsActive {
		t.Error("expiry is computed, the stored flag should be untouched")
	}
}

func TestValidateSessionTouchesActivityOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, sess, _ := f.svc.CreateSession(ctx, f.admin.ID, RequestMeta{})
	f.clock.Advance(time.Hour)

	ac, err := f.svc.ValidateSession(ctx, token)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if !ac.Session.LastActivityAt.Equal(f.clock.Now()) {
		t.Errorf("context last_activity_at = %v", ac.Session.LastActivityAt)
	}

	stored, _ := f.store.GetSessionByTokenHash(ctx, sess.TokenHash)
	if !stored.LastActivityAt.Equal(f.clock.Now()) {
		t.Errorf("stored last_activity_at = %v, want %v", stored.LastActivityAt, f.clock.Now())
	}
	if !stored.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Errorf("expires_at moved from %v to %v", sess.ExpiresAt, stored.ExpiresAt)
	}
}

func TestValidateSessionTouchOnQueue(t *testing.T) {
	queue := async.New(async.Options{Logger: quietLogger()})
	f := newFixture(t, func(o *Options) { o.Touches = queue })
	ctx := context.Background()

	token, sess, _ := f.svc.CreateSession(ctx, f.admin.ID, RequestMeta{})
	f.clock.Advance(15 * time.Minute)
	if _, err := f.svc.ValidateSession(ctx, token); err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	queue.Close()

	stored, _ := f.store.GetSessionByTokenHash(ctx, sess.TokenHash)
	if !stored.LastActivityAt.Equal(f.clock.Now()) {
		t.Errorf("last_activity_at = %v, want %v", stored.LastActivityAt, f.clock.Now())
	}
}

func TestValidateSessionSurvivesTouchFailure(t *testing.T) {
	queue := async.New(async.Options{Logger: quietLogger()})
	queue.Close() // every touch is dropped
	f := newFixture(t, func(o *Options) { o.Touches = queue })
	ctx := context.Background()

	token, _, _ := f.svc.CreateSession(ctx, f.admin.ID, RequestMeta{})
	if _, err := f.svc.ValidateSession(ctx, token); err != nil {
		t.Errorf("validation failed because the activity touch failed: %v", err)
	}
}

func TestValidateSessionRejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture, token string)
		token func(token string) string
	}{
		{
			name:  "empty token",
			token: func(string) string { return "" },
		},
		{
			name:  "never issued",
			token: func(string) string { return "dGhpcyB0b2tlbiB3YXMgbmV2ZXIgaXNzdWVkIGF0IGFsbA" },
		},
		{
			name: "invalidated",
			setup: func(t *testing.T, f *fixture, token string) {
				if err := f.svc.InvalidateSession(ctx, token, RequestMeta{}); err != nil {
					t.Fatalf("InvalidateSession: %v", err)
				}
			},
		},
		{
			name: "admin disabled",
			setup: func(t *testing.T, f *fixture, token string) {
				f.store.SetAdminActive(ctx, f.admin.ID, false) //nolint:errcheck
			},
		},
		{
			name: "admin locked",
			setup: func(t *testing.T, f *fixture, token string) {
				for i := 0; i < 5; i++ {
					f.login(t, "wrong", "")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			token, _, err := f.svc.CreateSession(ctx, f.admin.ID, RequestMeta{})
			if err != nil {
				t.Fatalf("CreateSession: %v", err)
			}
			if tt.setup != nil {
				tt.setup(t, f, token)
			}
			presented := token
			if tt.token != nil {
				presented = tt.token(token)
			}
			if _, err := f.svc.ValidateSession(ctx, presented); err != ErrSessionInvalid {
				t.Errorf("err = %v, want ErrSessionInvalid", err)
			}
		})
	}
}

func TestInvalidateSessionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token, _, _ := f.svc.CreateSession(ctx, f.admin.ID, RequestMeta{})

	for i := 0; i < 2; i++ {
		if err := f.svc.InvalidateSession(ctx, token, RequestMeta{}); err != nil {
			t.Fatalf("InvalidateSession #%d: %v", i+1, err)
		}
	}
	if err := f.svc.InvalidateSession(ctx, "unknown", RequestMeta{}); err != nil {
		t.Errorf("unknown token: %v", err)
	}

	var logouts int
	for _, e := range f.auditActions(t) {
		if e.ActionType == "logout" {
			logouts++
		}
	}
	if logouts != 1 {
		t.Errorf("recorded %d logouts, want 1", logouts)
	}
}

func TestInvalidateAllSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var tokens []string
	for i := 0; i < 3; i++ {
		token, _, _ := f.svc.CreateSession(ctx, f.admin.ID, RequestMeta{})
		tokens = append(tokens, token)
	}

	n, err := f.svc.InvalidateAllSessions(ctx, f.admin.ID)
	if err != nil {
		t.Fatalf("InvalidateAllSessions: %v", err)
	}
	if n != 3 {
		t.Errorf("ended %d sessions, want 3", n)
	}
	for _, token := range tokens {
		if _, err := f.svc.ValidateSession(ctx, token); err != ErrSessionInvalid {
			t.Errorf("session survived global logout: %v", err)
		}
	}
}

func TestAuthContextCan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token, _, _ := f.svc.CreateSession(ctx, f.admin.ID, RequestMeta{})

	ac, err := f.svc.ValidateSession(ctx, token)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if !ac.Can("content", "moderate") {
		t.Error("moderator should moderate content")
	}
	if ac.Can("admin_management", "manage") {
		t.Error("moderator must not manage admins")
	}

	var nilCtx *AuthContext
	if nilCtx.Can("content", "view") {
		t.Error("nil context must deny")
	}
}
