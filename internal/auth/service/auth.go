package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sentinelworks/gatekeeper/internal/auth/directory"
	"github.com/sentinelworks/gatekeeper/internal/auth/domain"
	"github.com/sentinelworks/gatekeeper/internal/auth/store"
	"github.com/sentinelworks/gatekeeper/pkg/jwtx"
)

var (
	ErrSessionNotFound = errors.New("session_not_found")
	ErrTokenMismatch   = errors.New("token_mismatch")
	ErrTokenRevoked    = errors.New("token_revoked")
)

// AuthService orchestrates sign-in, refresh rotation, sign-out and token
// validation across the directory, the session store and the revocation
// list.
type AuthService struct {
	codec       *jwtx.Codec
	dir         directory.Service
	sessions    store.Sessions
	revocations store.Revocations
	auditor     *Auditor
	logger      *slog.Logger
}

func NewAuthService(
	codec *jwtx.Codec,
	dir directory.Service,
	sessions store.Sessions,
	revocations store.Revocations,
	auditor *Auditor,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		codec:       codec,
		dir:         dir,
		sessions:    sessions,
		revocations: revocations,
		auditor:     auditor,
		logger:      logger,
	}
}

// SignIn authenticates against the directory and issues a token pair. The
// stored session for (user, device) is overwritten, so a second sign-in from
// the same device orphans the previous refresh token.
func (s *AuthService) SignIn(ctx context.Context, creds domain.Credentials) (jwtx.Pair, domain.AuthenticatedUser, error) {
	user, err := s.dir.Authenticate(ctx, creds)
	if err != nil {
		s.auditor.Record(ctx, domain.AuditEvent{
			EventType:     domain.AuditSignInFailure,
			Username:      creds.Username,
			FailureReason: err.Error(),
		})
		return jwtx.Pair{}, domain.AuthenticatedUser{}, err
	}
	if !user.Enabled {
		s.auditor.Record(ctx, domain.AuditEvent{
			EventType:     domain.AuditSignInFailure,
			UserID:        user.UserID,
			Username:      user.Username,
			FailureReason: "account disabled",
		})
		return jwtx.Pair{}, domain.AuthenticatedUser{}, directory.ErrAccountDisabled
	}

	pair, refreshClaims, err := s.issuePair(user, creds.DeviceID)
	if err != nil {
		return jwtx.Pair{}, domain.AuthenticatedUser{}, err
	}
	if err := s.storeSession(ctx, refreshClaims); err != nil {
		return jwtx.Pair{}, domain.AuthenticatedUser{}, err
	}

	s.auditor.Record(ctx, domain.AuditEvent{
		EventType: domain.AuditSignInSuccess,
		UserID:    user.UserID,
		Username:  user.Username,
		Success:   true,
	})

	s.logger.InfoContext(ctx, "user signed in",
		"user_id", user.UserID,
		"device_id", creds.DeviceID,
	)
	return pair, user, nil
}

// Refresh rotates a refresh token. The old token is revoked for its
// remaining natural lifetime; a revoked token showing up again is treated
// as theft and every session of the user is destroyed.
//
// Two concurrent calls with the same still-valid token can both pass the
// revocation and session checks; the session store's last write wins and the
// loser's pair is orphaned. Clients are expected not to refresh concurrently
// from one device.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (jwtx.Pair, error) {
	claims, err := s.codec.Validate(refreshToken, jwtx.TokenTypeRefresh)
	if err != nil {
		return jwtx.Pair{}, err
	}
	if claims.UserID == "" || claims.DeviceID == "" {
		return jwtx.Pair{}, jwtx.ErrMalformed
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.JTI())
	if err != nil {
		return jwtx.Pair{}, fmt.Errorf("revocation check: %w", err)
	}
	if revoked {
		return jwtx.Pair{}, s.containReuse(ctx, claims)
	}

	stored, err := s.sessions.Retrieve(ctx, claims.UserID, claims.DeviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return jwtx.Pair{}, ErrSessionNotFound
		}
		return jwtx.Pair{}, fmt.Errorf("session lookup: %w", err)
	}
	if stored.JTI() != claims.JTI() {
		s.auditor.Record(ctx, domain.AuditEvent{
			EventType:     domain.AuditTokenRefresh,
			UserID:        claims.UserID,
			Username:      claims.Username,
			FailureReason: "presented token is not the active session token",
		})
		return jwtx.Pair{}, ErrTokenMismatch
	}

	// No mutation on failure up to issuance; the stored session just runs
	// out its TTL if the user is gone or disabled.
	user, err := s.dir.FindByUsername(ctx, claims.Username)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return jwtx.Pair{}, directory.ErrInvalidCredentials
		}
		return jwtx.Pair{}, err
	}
	if !user.Enabled {
		return jwtx.Pair{}, directory.ErrAccountDisabled
	}

	pair, refreshClaims, err := s.issuePair(user, claims.DeviceID)
	if err != nil {
		return jwtx.Pair{}, err
	}

	// Revoking the superseded jti is what arms reuse detection; it happens
	// before the session write and a failure fails the whole rotation.
	if ttl := claims.RemainingLifetime(time.Now().UTC()); ttl > 0 {
		if err := s.revocations.Revoke(ctx, claims.JTI(), ttl); err != nil {
			return jwtx.Pair{}, fmt.Errorf("revoke rotated token: %w", err)
		}
	}

	if err := s.storeSession(ctx, refreshClaims); err != nil {
		return jwtx.Pair{}, err
	}

	s.auditor.Record(ctx, domain.AuditEvent{
		EventType: domain.AuditTokenRefresh,
		UserID:    user.UserID,
		Username:  user.Username,
		Success:   true,
	})
	return pair, nil
}

// SignOut revokes the access token and, when the refresh token is supplied,
// deletes the device session. An invalid access token fails the whole call
// with no side effects; the refresh token itself is never revoked, its
// session simply ceases to exist.
func (s *AuthService) SignOut(ctx context.Context, accessToken, refreshToken string) error {
	claims, err := s.codec.Validate(accessToken, jwtx.TokenTypeAccess)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ttl := claims.RemainingLifetime(time.Now().UTC())
		if ttl <= 0 {
			return nil
		}
		return s.revocations.Revoke(gctx, claims.JTI(), ttl)
	})
	if refreshToken != "" {
		g.Go(func() error {
			return s.sessions.Delete(gctx, claims.UserID, claims.DeviceID)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}

	s.auditor.Record(ctx, domain.AuditEvent{
		EventType: domain.AuditSignOut,
		UserID:    claims.UserID,
		Username:  claims.Username,
		Success:   true,
	})
	return nil
}

// Validate checks an access token's signature, expiry, type and revocation
// status and returns its claims.
func (s *AuthService) Validate(ctx context.Context, accessToken string) (jwtx.Claims, error) {
	claims, err := s.codec.Validate(accessToken, jwtx.TokenTypeAccess)
	if err != nil {
		return jwtx.Claims{}, err
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.JTI())
	if err != nil {
		return jwtx.Claims{}, fmt.Errorf("revocation check: %w", err)
	}
	if revoked {
		return jwtx.Claims{}, ErrTokenRevoked
	}
	return claims, nil
}

// issuePair mints a token pair and returns the refresh claims alongside it
// for session bookkeeping.
func (s *AuthService) issuePair(user domain.AuthenticatedUser, deviceID string) (jwtx.Pair, jwtx.Claims, error) {
	identity := jwtx.Identity{
		UserID:   user.UserID,
		Username: user.Username,
		Email:    user.Email,
		Roles:    user.Roles,
	}

	pair, err := s.codec.Issue(identity, deviceID)
	if err != nil {
		return jwtx.Pair{}, jwtx.Claims{}, fmt.Errorf("issue tokens: %w", err)
	}

	refreshClaims, err := s.codec.Validate(pair.RefreshToken, jwtx.TokenTypeRefresh)
	if err != nil {
		return jwtx.Pair{}, jwtx.Claims{}, fmt.Errorf("read back refresh claims: %w", err)
	}
	return pair, refreshClaims, nil
}

// storeSession overwrites the single active session for (user, device).
func (s *AuthService) storeSession(ctx context.Context, refreshClaims jwtx.Claims) error {
	ttl := refreshClaims.RemainingLifetime(time.Now().UTC())
	if err := s.sessions.Store(ctx, refreshClaims.UserID, refreshClaims.DeviceID, refreshClaims, ttl); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// containReuse handles a revoked refresh token being replayed. Someone holds
// a token that was already rotated away, so every session of the user is
// destroyed and the caller gets a hard failure.
func (s *AuthService) containReuse(ctx context.Context, claims jwtx.Claims) error {
	s.logger.WarnContext(ctx, "refresh token reuse detected",
		"user_id", claims.UserID,
		"device_id", claims.DeviceID,
		"jti", claims.JTI(),
	)

	if err := s.sessions.DeleteAll(ctx, claims.UserID); err != nil {
		s.logger.ErrorContext(ctx, "purging sessions after reuse failed",
			"user_id", claims.UserID,
			"error", err,
		)
	}

	s.auditor.Record(ctx, domain.AuditEvent{
		EventType:     domain.AuditTokenReuseDetected,
		UserID:        claims.UserID,
		Username:      claims.Username,
		FailureReason: "revoked refresh token presented again",
	})
	return ErrTokenRevoked
}
