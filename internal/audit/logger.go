// Package audit records security events to the append-only audit ledger.
//
// Writes are asynchronous. Log validates and stamps the event, hands it to a
// background queue and returns; a failed or dropped write is logged and
// reported on the queue's error channel but never reaches the caller.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agora-social/agora-admin/internal/async"
	"github.com/agora-social/agora-admin/internal/model"
)

// Action types written by the auth core.
const (
	ActionLoginSuccess    = "login_success"
	ActionLoginFailed     = "login_failed"
	ActionLoginBlocked    = "login_blocked"
	Action2FAFailed       = "2fa_failed"
	Action2FAEnabled      = "2fa_enabled"
	Action2FADisabled     = "2fa_disabled"
	ActionLogout          = "logout"
	ActionSessionsRevoked = "sessions_revoked"
	ActionPasswordChanged = "password_changed"
	ActionAdminCreated    = "admin_created"
	ActionAdminDisabled   = "admin_disabled"
	ActionAdminEnabled    = "admin_enabled"
	ActionAdminUnlocked   = "admin_unlocked"
	ActionAccessDenied    = "access_denied"
)

// Event is one security event as produced by callers. AdminID is nil when
// the actor could not be resolved; ActorEmail then carries what was typed.
type Event struct {
	AdminID    *int64
	ActorEmail string
	Category   model.AuditCategory
	Action     string
	TargetType string
	TargetID   string
	Details    map[string]any
	Reason     string
	IPAddress  string
	UserAgent  string
}

// Writer persists audit entries. *config.Store satisfies it.
type Writer interface {
	AppendAuditEntry(ctx context.Context, e *model.AuditLogEntry) error
}

// Logger is the asynchronous audit writer.
type Logger struct {
	writer Writer
	queue  *async.Queue
	logger *slog.Logger
	now    func() time.Time
}

// Options configure a Logger.
type Options struct {
	BufferSize int
	Logger     *slog.Logger
	Clock      func() time.Time
}

// NewLogger starts an audit logger writing to w.
func NewLogger(w Writer, opts Options) *Logger {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Logger{
		writer: w,
		queue: async.New(async.Options{
			Name:       "audit",
			BufferSize: opts.BufferSize,
			Logger:     opts.Logger,
		}),
		logger: opts.Logger,
		now:    opts.Clock,
	}
}

// Log records ev without blocking. It never fails from the caller's point of
// view; invalid events are logged and discarded. ctx is accepted for
// symmetry with other calls and is not used by the write, which outlives the
// request.
func (l *Logger) Log(_ context.Context, ev Event) {
	if l == nil {
		return
	}
	entry, err := l.entry(ev)
	if err != nil {
		l.logger.Error("audit event discarded", "action", ev.Action, "error", err)
		return
	}
	l.queue.Submit("audit:"+entry.ActionType, func(ctx context.Context) error {
		return l.writer.AppendAuditEntry(ctx, entry)
	})
}

func (l *Logger) entry(ev Event) (*model.AuditLogEntry, error) {
	if !ev.Category.Valid() {
		return nil, fmt.Errorf("unknown audit category %q", ev.Category)
	}
	if ev.Action == "" {
		return nil, errors.New("audit event without action")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate audit id: %w", err)
	}

	var details json.RawMessage
	if len(ev.Details) > 0 {
		details, err = json.Marshal(ev.Details)
		if err != nil {
			return nil, fmt.Errorf("marshal audit details: %w", err)
		}
	}

	return &model.AuditLogEntry{
		ID:         id.String(),
		AdminID:    ev.AdminID,
		ActorEmail: ev.ActorEmail,
		Category:   ev.Category,
		ActionType: ev.Action,
		TargetType: ev.TargetType,
		TargetID:   ev.TargetID,
		Details:    details,
		Reason:     ev.Reason,
		IPAddress:  ev.IPAddress,
		UserAgent:  ev.UserAgent,
		CreatedAt:  l.now().UTC(),
	}, nil
}

// Errors exposes write failures, mostly for tests and metrics.
func (l *Logger) Errors() <-chan async.TaskError {
	return l.queue.Errors()
}

// Close flushes pending events and stops the writer.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.queue.Close()
}
