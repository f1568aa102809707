package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/sentinelworks/gatekeeper/internal/auth/directory"
	"github.com/sentinelworks/gatekeeper/internal/auth/domain"
	"github.com/sentinelworks/gatekeeper/internal/auth/store"
	"github.com/sentinelworks/gatekeeper/pkg/cryptox"
	"github.com/sentinelworks/gatekeeper/pkg/idx"
)

var (
	ErrResetTokenInvalid         = errors.New("invalid_reset_token")
	ErrResetTokenExpired         = errors.New("expired_reset_token")
	ErrCurrentPasswordMismatch   = errors.New("current_password_mismatch")
	ErrPasswordChangeUnsupported = errors.New("password_change_unsupported")
)

const DefaultResetTokenTTL = 30 * time.Minute

// ResetNotification is handed to the notifier when a reset is requested. It
// carries the raw token URL; the store only ever sees the fingerprint.
type ResetNotification struct {
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	ResetURL  string    `json:"resetUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ResetNotifier delivers reset notifications out of process.
type ResetNotifier interface {
	PasswordResetRequested(ctx context.Context, n ResetNotification) error
}

// PasswordService runs the password recovery and update lifecycle. The
// directory stays the single source of truth for credentials; this service
// only manages the reset tokens that gate a change.
type PasswordService struct {
	dir         directory.Service
	resetTokens store.ResetTokens
	sessions    store.Sessions
	notifier    ResetNotifier
	auditor     *Auditor
	policy      PasswordPolicy
	tokenTTL    time.Duration
	resetURL    string
	logger      *slog.Logger
}

func NewPasswordService(
	dir directory.Service,
	resetTokens store.ResetTokens,
	sessions store.Sessions,
	notifier ResetNotifier,
	auditor *Auditor,
	policy PasswordPolicy,
	tokenTTL time.Duration,
	resetURL string,
	logger *slog.Logger,
) *PasswordService {
	if tokenTTL <= 0 {
		tokenTTL = DefaultResetTokenTTL
	}
	return &PasswordService{
		dir:         dir,
		resetTokens: resetTokens,
		sessions:    sessions,
		notifier:    notifier,
		auditor:     auditor,
		policy:      policy,
		tokenTTL:    tokenTTL,
		resetURL:    resetURL,
		logger:      logger,
	}
}

// Recover starts a password reset for the account behind the email. The
// answer is identical whether or not the account exists, so the endpoint
// cannot be used to enumerate users. Nothing past the request body check can
// fail the call: infrastructure errors are logged and the caller still sees
// success, for the same reason an unknown email does.
func (s *PasswordService) Recover(ctx context.Context, email string) error {
	user, err := s.dir.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			s.logger.InfoContext(ctx, "password recovery for unknown email", "email", email)
		} else {
			s.logger.ErrorContext(ctx, "password recovery lookup failed", "error", err)
		}
		return nil
	}

	if err := s.resetTokens.CancelPendingForUser(ctx, user.UserID); err != nil {
		s.logger.ErrorContext(ctx, "cancelling pending reset tokens failed",
			"user_id", user.UserID,
			"error", err,
		)
		return nil
	}

	raw, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		s.logger.ErrorContext(ctx, "generating reset token failed", "error", err)
		return nil
	}

	now := time.Now().UTC()
	token := domain.PasswordResetToken{
		ID:        idx.New().String(),
		Token:     cryptox.FingerprintToken(raw),
		UserID:    user.UserID,
		Email:     user.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.tokenTTL),
		Status:    domain.ResetTokenPending,
	}
	if err := s.resetTokens.Create(ctx, token); err != nil {
		s.logger.ErrorContext(ctx, "storing reset token failed",
			"user_id", user.UserID,
			"error", err,
		)
		return nil
	}

	notification := ResetNotification{
		Email:     user.Email,
		Username:  user.Username,
		ResetURL:  s.resetURL + "?token=" + url.QueryEscape(raw),
		ExpiresAt: token.ExpiresAt,
	}
	if err := s.notifier.PasswordResetRequested(ctx, notification); err != nil {
		// The token is already stored; the user can retry the request.
		s.logger.ErrorContext(ctx, "reset notification failed",
			"user_id", user.UserID,
			"error", err,
		)
	}

	s.auditor.Record(ctx, domain.AuditEvent{
		EventType: domain.AuditPasswordResetRequested,
		UserID:    user.UserID,
		Username:  user.Username,
		Success:   true,
	})
	return nil
}

// Reset redeems a reset token and writes the new password to the directory.
// All sessions of the user are destroyed afterwards.
func (s *PasswordService) Reset(ctx context.Context, rawToken, newPassword string) error {
	if err := s.policy.Validate(newPassword); err != nil {
		return err
	}

	token, err := s.resetTokens.GetByToken(ctx, cryptox.FingerprintToken(rawToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("reset token lookup: %w", err)
	}

	now := time.Now().UTC()
	if token.IsExpired(now) {
		s.auditFailure(ctx, token, "reset token expired")
		return ErrResetTokenExpired
	}
	if !token.Consumable(now) {
		s.auditFailure(ctx, token, "reset token already consumed")
		return ErrResetTokenInvalid
	}

	passwords, ok := directory.Passwords(s.dir)
	if !ok {
		return ErrPasswordChangeUnsupported
	}
	if err := passwords.ChangePassword(ctx, token.UserID, newPassword); err != nil {
		s.auditFailure(ctx, token, "directory rejected password change")
		return err
	}

	if err := s.resetTokens.MarkUsed(ctx, token.ID, now); err != nil {
		// Password already changed; a second redeem attempt will still
		// fail on the directory side with the old token's password gone.
		s.logger.ErrorContext(ctx, "marking reset token used failed",
			"token_id", token.ID,
			"error", err,
		)
	}

	if err := s.sessions.DeleteAll(ctx, token.UserID); err != nil {
		s.logger.ErrorContext(ctx, "purging sessions after reset failed",
			"user_id", token.UserID,
			"error", err,
		)
	}

	s.auditor.Record(ctx, domain.AuditEvent{
		EventType: domain.AuditPasswordResetCompleted,
		UserID:    token.UserID,
		Success:   true,
	})
	return nil
}

// Update changes a password for a signed-in user after re-verifying the
// current one. It is keyed by username: the only identifier every backend
// can re-bind with (LDAP and AD cannot bind by entry UUID/GUID).
func (s *PasswordService) Update(ctx context.Context, username, currentPassword, newPassword string) error {
	if err := s.policy.Validate(newPassword); err != nil {
		return err
	}

	passwords, ok := directory.Passwords(s.dir)
	if !ok {
		return ErrPasswordChangeUnsupported
	}

	if err := passwords.VerifyPassword(ctx, username, currentPassword); err != nil {
		s.auditor.Record(ctx, domain.AuditEvent{
			EventType:     domain.AuditPasswordResetFailed,
			Username:      username,
			FailureReason: "current password rejected",
		})
		if errors.Is(err, directory.ErrInvalidCredentials) {
			return ErrCurrentPasswordMismatch
		}
		return err
	}

	user, err := s.dir.FindByUsername(ctx, username)
	if err != nil {
		return err
	}

	if err := passwords.ChangePassword(ctx, user.UserID, newPassword); err != nil {
		return err
	}

	if err := s.sessions.DeleteAll(ctx, user.UserID); err != nil {
		s.logger.ErrorContext(ctx, "purging sessions after password update failed",
			"user_id", user.UserID,
			"error", err,
		)
	}

	s.auditor.Record(ctx, domain.AuditEvent{
		EventType: domain.AuditPasswordUpdated,
		UserID:    user.UserID,
		Username:  user.Username,
		Success:   true,
	})
	return nil
}

func (s *PasswordService) auditFailure(ctx context.Context, token domain.PasswordResetToken, reason string) {
	s.auditor.Record(ctx, domain.AuditEvent{
		EventType:     domain.AuditPasswordResetFailed,
		UserID:        token.UserID,
		FailureReason: reason,
	})
}
