package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sentinelworks/gatekeeper/internal/auth/domain"
	"github.com/sentinelworks/gatekeeper/internal/auth/store"
	"github.com/sentinelworks/gatekeeper/pkg/idx"
	"github.com/sentinelworks/gatekeeper/pkg/slogx"
)

const auditWriteTimeout = 5 * time.Second

// Auditor appends audit events without blocking the request path. A failed
// append is logged and dropped; authentication never waits on the audit
// sink and never fails because of it.
type Auditor struct {
	sink   store.AuditLog
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewAuditor(sink store.AuditLog, logger *slog.Logger) *Auditor {
	return &Auditor{sink: sink, logger: logger}
}

// Record stamps and persists the event in the background. The write outlives
// request cancellation but not the audit timeout.
func (a *Auditor) Record(ctx context.Context, e domain.AuditEvent) {
	if e.ID == "" {
		e.ID = idx.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.CorrelationID == "" {
		e.CorrelationID = slogx.CorrelationID(ctx)
	}
	if meta := domain.RequestMetaFrom(ctx); e.IP == "" {
		e.IP = meta.IP
		e.UserAgent = meta.UserAgent
	}

	bgCtx := context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		writeCtx, cancel := context.WithTimeout(bgCtx, auditWriteTimeout)
		defer cancel()

		if err := a.sink.Append(writeCtx, e); err != nil {
			a.logger.Error("audit append failed",
				"event_type", string(e.EventType),
				"user_id", e.UserID,
				"error", err,
			)
		}
	}()
}

// Wait blocks until all in-flight audit writes finish. Called on shutdown.
func (a *Auditor) Wait() { a.wg.Wait() }
