package domain

import "time"

// AuditEventType enumerates the security-relevant outcomes recorded by the
// audit log.
type AuditEventType string

const (
	AuditSignInSuccess          AuditEventType = "sign_in_success"
	AuditSignInFailure          AuditEventType = "sign_in_failure"
	AuditSignOut                AuditEventType = "sign_out"
	AuditTokenRefresh           AuditEventType = "token_refresh"
	AuditTokenReuseDetected     AuditEventType = "token_reuse_detected"
	AuditPasswordResetRequested AuditEventType = "password_reset_requested"
	AuditPasswordResetCompleted AuditEventType = "password_reset_completed"
	AuditPasswordResetFailed    AuditEventType = "password_reset_failed"
	AuditPasswordUpdated        AuditEventType = "password_updated"
)

// AuditEvent is one append-only audit record.
type AuditEvent struct {
	ID            string
	EventType     AuditEventType
	UserID        string
	Username      string
	Success       bool
	FailureReason string
	IP            string
	UserAgent     string
	CorrelationID string
	Timestamp     time.Time
}
