package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentinelworks/gatekeeper/internal/auth/directory"
	"github.com/sentinelworks/gatekeeper/internal/auth/domain"
)

type passwordHarness struct {
	svc      *PasswordService
	dir      *fakePasswordDirectory
	tokens   *fakeResetTokens
	sessions *fakeSessions
	notifier *fakeNotifier
	audit    *fakeAuditLog
	auditor  *Auditor
}

func newPasswordHarness(t *testing.T, tokenTTL time.Duration) *passwordHarness {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	dir := &fakePasswordDirectory{fakeDirectory: fakeDirectory{user: testUser()}}
	tokens := newFakeResetTokens()
	sessions := newFakeSessions()
	notifier := &fakeNotifier{}
	audit := &fakeAuditLog{}
	auditor := NewAuditor(audit, logger)

	svc := NewPasswordService(
		dir, tokens, sessions, notifier, auditor,
		DefaultPasswordPolicy(), tokenTTL, "https://account.example.com/reset", logger,
	)

	return &passwordHarness{
		svc:      svc,
		dir:      dir,
		tokens:   tokens,
		sessions: sessions,
		notifier: notifier,
		audit:    audit,
		auditor:  auditor,
	}
}

// rawTokenFromNotification digs the raw token out of the delivered URL.
func rawTokenFromNotification(t *testing.T, n ResetNotification) string {
	t.Helper()
	u, err := url.Parse(n.ResetURL)
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func TestRecover(t *testing.T) {
	t.Parallel()

	t.Run("unknown email succeeds silently", func(t *testing.T) {
		t.Parallel()
		h := newPasswordHarness(t, time.Hour)
		h.dir.findErr = directory.ErrUserNotFound

		require.NoError(t, h.svc.Recover(context.Background(), "ghost@example.com"))
		require.Empty(t, h.notifier.sent())
		require.Empty(t, h.tokens.byStatus(domain.ResetTokenPending))
	})

	t.Run("creates a pending token and notifies", func(t *testing.T) {
		t.Parallel()
		h := newPasswordHarness(t, time.Hour)

		require.NoError(t, h.svc.Recover(context.Background(), "alice@example.com"))

		pending := h.tokens.byStatus(domain.ResetTokenPending)
		require.Len(t, pending, 1)
		require.Equal(t, "u-1", pending[0].UserID)

		sent := h.notifier.sent()
		require.Len(t, sent, 1)
		require.Equal(t, "alice@example.com", sent[0].Email)
		require.True(t, strings.HasPrefix(sent[0].ResetURL, "https://account.example.com/reset?token="))

		// The store holds the fingerprint, never the raw token.
		raw := rawTokenFromNotification(t, sent[0])
		require.NotEqual(t, raw, pending[0].Token)

		h.auditor.Wait()
		require.Len(t, h.audit.ofType(domain.AuditPasswordResetRequested), 1)
	})

	t.Run("a new request cancels the previous pending token", func(t *testing.T) {
		t.Parallel()
		h := newPasswordHarness(t, time.Hour)

		require.NoError(t, h.svc.Recover(context.Background(), "alice@example.com"))
		require.NoError(t, h.svc.Recover(context.Background(), "alice@example.com"))

		require.Len(t, h.tokens.byStatus(domain.ResetTokenPending), 1)
		require.Len(t, h.tokens.byStatus(domain.ResetTokenCancelled), 1)
	})

	t.Run("notifier failure does not fail the request", func(t *testing.T) {
		t.Parallel()
		h := newPasswordHarness(t, time.Hour)
		h.notifier.err = context.DeadlineExceeded

		require.NoError(t, h.svc.Recover(context.Background(), "alice@example.com"))
		require.Len(t, h.tokens.byStatus(domain.ResetTokenPending), 1)
	})

	t.Run("store failure does not fail the request", func(t *testing.T) {
		t.Parallel()
		h := newPasswordHarness(t, time.Hour)
		h.tokens.createErr = errors.New("store down")

		require.NoError(t, h.svc.Recover(context.Background(), "alice@example.com"))
		require.Empty(t, h.notifier.sent())
		require.Empty(t, h.tokens.byStatus(domain.ResetTokenPending))
	})

	t.Run("directory outage does not fail the request", func(t *testing.T) {
		t.Parallel()
		h := newPasswordHarness(t, time.Hour)
		h.dir.findErr = directory.ErrUnavailable

		require.NoError(t, h.svc.Recover(context.Background(), "alice@example.com"))
		require.Empty(t, h.notifier.sent())
	})
}

func TestReset(t *testing.T) {
	t.Parallel()

	const newPassword = "Brand-New-Passw0rd"

	recover := func(t *testing.T, h *passwordHarness) string {
		t.Helper()
		require.NoError(t, h.svc.Recover(context.Background(), "alice@example.com"))
		sent := h.notifier.sent()
		require.Len(t, sent, 1)
		return rawTokenFromNotification(t, sent[0])
	}

	t.Run("redeems the token and changes the password", func(t *testing.T) {
		t.Parallel()
		h := newPasswordHarness(t, time.Hour)
		raw := recover(t, h)

		require.NoError(t, h.sessions.Store(context.Background(), "u-1", "laptop", claimsFor("u-1"), time.Hour))

		require.NoError(t, h.svc.Reset(context.Background(), raw, newPassword))
		require.Equal(t, newPassword, h.dir.changed["u-1"])
		require.Len(t, h.tokens.byStatus(domain.ResetTokenUsed), 1)

		// Every session dies with the old password.
		require.Zero(t, h.sessions.count())

		h.auditor.Wait()
		require.Len(t, h.audit.ofType(domain.AuditPasswordResetCompleted), 1)
	})

	t.Run("a token redeems exactly once", func(t *testing.T) {
		t.Parallel()
		h := newPasswordHarness(t, time.Hour)
		raw := recover(t, h)

		require.NoError(t, h.svc.Reset(context.Background(), raw, newPassword))
		err := h.svc.Reset(context.Background(), raw, newPassword)
		require.ErrorIs(t, err, ErrResetTokenInvalid)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		t.Parallel()
		h := newPasswordHarness(t, time.Nanosecond)
		raw := recover(t, h)

		time.Sleep(5 * time.Millisecond)

		err := h.svc.Reset(context.Background(), raw, newPassword)
		require.ErrorIs(t, err, ErrResetTokenExpired)
		require.Empty(t, h.dir.changed)
	})

	t.Run("unknown token is rejected", func(t *testing.T) {
		t.Parallel()
		h := newPasswordHarness(t, time.Hour)

		err := h.svc.Reset(context.Background(), "made-up-token", newPassword)
		require.ErrorIs(t, err, ErrResetTokenInvalid)
	})

	t.Run("weak password is rejected before any lookup", func(t *testing.T) {
		t.Parallel()
		h := newPasswordHarness(t, time.Hour)
		raw := recover(t, h)

		err := h.svc.Reset(context.Background(), raw, "short")
		require.ErrorIs(t, err, ErrWeakPassword)

		// Token survives the failed attempt.
		require.Len(t, h.tokens.byStatus(domain.ResetTokenPending), 1)
	})
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	t.Run("verifies the current password first", func(t *testing.T) {
		t.Parallel()
		h := newPasswordHarness(t, time.Hour)
		h.dir.verifyErr = directory.ErrInvalidCredentials

		err := h.svc.Update(context.Background(), "alice", "wrong", "Brand-New-Passw0rd")
		require.ErrorIs(t, err, ErrCurrentPasswordMismatch)
		require.Empty(t, h.dir.changed)
	})

	t.Run("changes the password and purges sessions", func(t *testing.T) {
		t.Parallel()
		h := newPasswordHarness(t, time.Hour)
		require.NoError(t, h.sessions.Store(context.Background(), "u-1", "laptop", claimsFor("u-1"), time.Hour))

		require.NoError(t, h.svc.Update(context.Background(), "alice", "old-pw", "Brand-New-Passw0rd"))
		require.Equal(t, "Brand-New-Passw0rd", h.dir.changed["u-1"])
		require.Zero(t, h.sessions.count())

		h.auditor.Wait()
		require.Len(t, h.audit.ofType(domain.AuditPasswordUpdated), 1)
	})
}

func TestPasswordChangeUnsupported(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	bindOnly := &fakeDirectory{user: testUser()}
	tokens := newFakeResetTokens()
	sessions := newFakeSessions()
	auditor := NewAuditor(&fakeAuditLog{}, logger)

	svc := NewPasswordService(
		bindOnly, tokens, sessions, &fakeNotifier{}, auditor,
		DefaultPasswordPolicy(), time.Hour, "https://account.example.com/reset", logger,
	)

	require.NoError(t, svc.Recover(context.Background(), "alice@example.com"))

	err := svc.Update(context.Background(), "alice", "old", "Brand-New-Passw0rd")
	require.ErrorIs(t, err, ErrPasswordChangeUnsupported)
}
