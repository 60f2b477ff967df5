package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agora-social/agora-admin/internal/model"
)

// The audit ledger is append-only: this file deliberately has no update or
// delete statements for audit_log.

// auditRow maps 1:1 to the audit_log table. Details are stored as JSON text.
type auditRow struct {
	ID          string    `db:"id"`
	AdminID     *int64    `db:"admin_id"`
	ActorEmail  string    `db:"actor_email"`
	Category    string    `db:"category"`
	ActionType  string    `db:"action_type"`
	TargetType  string    `db:"target_type"`
	TargetID    string    `db:"target_id"`
	DetailsJSON string    `db:"details_json"`
	Reason      string    `db:"reason"`
	IPAddress   string    `db:"ip_address"`
	UserAgent   string    `db:"user_agent"`
	CreatedAt   time.Time `db:"created_at"`
}

func auditRowFromModel(e *model.AuditLogEntry) auditRow {
	details := ""
	if len(e.Details) > 0 {
		details = string(e.Details)
	}
	return auditRow{
		ID:          e.ID,
		AdminID:     e.AdminID,
		ActorEmail:  e.ActorEmail,
		Category:    string(e.Category),
		ActionType:  e.ActionType,
		TargetType:  e.TargetType,
		TargetID:    e.TargetID,
		DetailsJSON: details,
		Reason:      e.Reason,
		IPAddress:   e.IPAddress,
		UserAgent:   e.UserAgent,
		CreatedAt:   e.CreatedAt.UTC(),
	}
}

func (r auditRow) toModel() model.AuditLogEntry {
	e := model.AuditLogEntry{
		ID:         r.ID,
		AdminID:    r.AdminID,
		ActorEmail: r.ActorEmail,
		Category:   model.AuditCategory(r.Category),
		ActionType: r.ActionType,
		TargetType: r.TargetType,
		TargetID:   r.TargetID,
		Reason:     r.Reason,
		IPAddress:  r.IPAddress,
		UserAgent:  r.UserAgent,
		CreatedAt:  r.CreatedAt,
	}
	if r.DetailsJSON != "" {
		e.Details = json.RawMessage(r.DetailsJSON)
	}
	return e
}

// AppendAuditEntry writes one immutable audit entry.
func (s *Store) AppendAuditEntry(ctx context.Context, e *model.AuditLogEntry) error {
	if !e.Category.Valid() {
		return fmt.Errorf("append audit entry: unknown category %q", e.Category)
	}

	const q = `INSERT INTO audit_log
		(id, admin_id, actor_email, category, action_type, target_type, target_id,
		 details_json, reason, ip_address, user_agent, created_at)
		VALUES
		(:id, :admin_id, :actor_email, :category, :action_type, :target_type, :target_id,
		 :details_json, :reason, :ip_address, :user_agent, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, q, auditRowFromModel(e)); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns audit entries matching the filter, newest first.
// A zero Limit defaults to 100.
func (s *Store) ListAuditEntries(ctx context.Context, f model.AuditFilter) ([]model.AuditLogEntry, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.AdminID != nil {
		where = append(where, "admin_id = ?")
		args = append(args, *f.AdminID)
	}
	if f.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UTC())
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	q := "SELECT * FROM audit_log"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d", limit)

	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}

	entries := make([]model.AuditLogEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.toModel()
	}
	return entries, nil
}
