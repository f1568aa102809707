package sqlite

import (
	"context"
	"database/sql"

	"github.com/sentinelworks/gatekeeper/internal/auth/domain"
	"github.com/sentinelworks/gatekeeper/internal/auth/store"
)

type auditLogRepo struct {
	db *sql.DB
}

var _ store.AuditLog = (*auditLogRepo)(nil)

func (r *auditLogRepo) Append(ctx context.Context, e domain.AuditEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events
			(id, event_type, user_id, username, success, failure_reason,
			 ip, user_agent, correlation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		string(e.EventType),
		mapStringNull(e.UserID),
		mapStringNull(e.Username),
		e.Success,
		mapStringNull(e.FailureReason),
		mapStringNull(e.IP),
		mapStringNull(e.UserAgent),
		mapStringNull(e.CorrelationID),
		e.Timestamp.UTC(),
	)
	return err
}
