// Package directory abstracts the user directories Gatekeeper can
// authenticate against. Every backend answers the same four questions:
// can this user sign in, who are they by username, who are they by email,
// and is the backend reachable at all.
package directory

import (
	"context"
	"errors"

	"github.com/sentinelworks/gatekeeper/internal/auth/domain"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountLocked      = errors.New("account_locked")
	ErrAccountDisabled    = errors.New("account_disabled")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrUnavailable        = errors.New("directory_unavailable")
)

// Service is a user directory backend.
type Service interface {
	// Authenticate verifies the credentials against the backend and returns
	// the directory's view of the user. Credential failures map to
	// ErrInvalidCredentials, ErrAccountLocked or ErrAccountDisabled;
	// anything else is a transport fault.
	Authenticate(ctx context.Context, creds domain.Credentials) (domain.AuthenticatedUser, error)

	FindByUsername(ctx context.Context, username string) (domain.AuthenticatedUser, error)
	FindByEmail(ctx context.Context, email string) (domain.AuthenticatedUser, error)

	// IsAvailable probes the backend without authenticating anyone.
	IsAvailable(ctx context.Context) bool
}

// PasswordService is implemented by backends that own the credential store
// and can change it. Bind-only directories (plain LDAP) do not implement it.
type PasswordService interface {
	VerifyPassword(ctx context.Context, username, password string) error
	ChangePassword(ctx context.Context, userID, newPassword string) error
}

// Passwords returns the password capability of svc if it has one, unwrapping
// resilience decorators along the way.
func Passwords(svc Service) (PasswordService, bool) {
	type unwrapper interface{ Unwrap() Service }

	for svc != nil {
		if ps, ok := svc.(PasswordService); ok {
			return ps, true
		}
		u, ok := svc.(unwrapper)
		if !ok {
			return nil, false
		}
		svc = u.Unwrap()
	}
	return nil, false
}
