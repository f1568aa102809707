package store

import (
	"context"
	"errors"
	"time"

	"github.com/sentinelworks/gatekeeper/internal/auth/domain"
	"github.com/sentinelworks/gatekeeper/pkg/jwtx"
)

var ErrNotFound = errors.New("store: not found")

// Sessions holds the single active refresh session per (user, device). Keys
// carry a TTL equal to the refresh token's remaining lifetime, so stale
// sessions evict themselves. Store overwrites, never appends.
type Sessions interface {
	Store(ctx context.Context, userID, deviceID string, claims jwtx.Claims, ttl time.Duration) error
	Retrieve(ctx context.Context, userID, deviceID string) (jwtx.Claims, error)
	Delete(ctx context.Context, userID, deviceID string) error

	// DeleteAll removes every device session of a user. Used to contain a
	// detected refresh-token replay.
	DeleteAll(ctx context.Context, userID string) error
}

// Revocations is the TTL'd revocation list keyed by jti. Entries expire with
// the token's natural lifetime, so the list never needs pruning.
type Revocations interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// ResetTokens persists password reset tokens.
type ResetTokens interface {
	Create(ctx context.Context, t domain.PasswordResetToken) error
	GetByToken(ctx context.Context, token string) (domain.PasswordResetToken, error)
	MarkUsed(ctx context.Context, id string, usedAt time.Time) error

	// CancelPendingForUser flips every PENDING token of the user to
	// CANCELLED, enforcing at-most-one-pending per user.
	CancelPendingForUser(ctx context.Context, userID string) error
}

// AuditLog is the append-only audit sink.
type AuditLog interface {
	Append(ctx context.Context, e domain.AuditEvent) error
}
