package authapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit actions.
const (
	auditLoginSuccess     = "auth.login.success"
	auditLoginFailed      = "auth.login.failed"
	auditLoginConflict    = "auth.login.conflict"
	auditLoginForced      = "auth.login.forced"
	auditLoginRateLimited = "auth.login.rate_limited"
	auditLogout           = "auth.logout"
	auditLogoutAll        = "auth.admin.logout_all"
)

// AuditRecord is one security-relevant event.
type AuditRecord struct {
	Action    string
	AccountID string
	IP        net.IP
	UserAgent string
	Meta      map[string]any
}

// Auditor persists audit records. Failures are logged, never returned.
type Auditor interface {
	Record(ctx context.Context, rec AuditRecord)
}

// LogAuditor writes records as structured log lines.
type LogAuditor struct {
	Log *slog.Logger
}

func (a LogAuditor) Record(_ context.Context, rec AuditRecord) {
	log := a.Log
	if log == nil {
		log = slog.Default()
	}
	attrs := []any{"action", rec.Action, "account_id", rec.AccountID, "user_agent", rec.UserAgent}
	if rec.IP != nil {
		attrs = append(attrs, "ip", rec.IP.String())
	}
	if len(rec.Meta) > 0 {
		attrs = append(attrs, "meta", rec.Meta)
	}
	log.Info("audit", attrs...)
}

// PostgresAuditor inserts into feedback.audit_log.
type PostgresAuditor struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPostgresAuditor(pool *pgxpool.Pool, log *slog.Logger) *PostgresAuditor {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresAuditor{pool: pool, log: log}
}

// AuditSchemaSQL creates the audit table.
const AuditSchemaSQL = `
CREATE SCHEMA IF NOT EXISTS feedback;
CREATE TABLE IF NOT EXISTS feedback.audit_log (
	id         BIGSERIAL PRIMARY KEY,
	account_id TEXT,
	action     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	ip         INET,
	user_agent TEXT,
	meta       JSONB
);
CREATE INDEX IF NOT EXISTS audit_log_account_created_idx ON feedback.audit_log (account_id, created_at DESC);
`

// EnsureSchema applies AuditSchemaSQL.
func (a *PostgresAuditor) EnsureSchema(ctx context.Context) error {
	_, err := a.pool.Exec(ctx, AuditSchemaSQL)
	return err
}

func (a *PostgresAuditor) Record(ctx context.Context, rec AuditRecord) {
	if a == nil || a.pool == nil {
		return
	}
	action := strings.TrimSpace(rec.Action)
	if action == "" {
		return
	}

	var ipVal any
	if rec.IP != nil {
		ipVal = rec.IP.String()
	}

	var metaVal *string
	if len(rec.Meta) > 0 {
		if b, err := json.Marshal(rec.Meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := a.pool.Exec(ctx, `
		INSERT INTO feedback.audit_log (
			account_id, action, created_at, ip, user_agent, meta
		) VALUES ($1, $2, now(), $3, $4, $5::jsonb)
	`, trimOrNil(rec.AccountID), action, ipVal, trimOrNil(rec.UserAgent), metaVal)
	if err != nil {
		a.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}

// MultiAuditor fans a record out to several auditors.
type MultiAuditor []Auditor

func (m MultiAuditor) Record(ctx context.Context, rec AuditRecord) {
	for _, a := range m {
		if a != nil {
			a.Record(ctx, rec)
		}
	}
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
