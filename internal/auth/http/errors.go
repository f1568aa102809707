package http

import (
	"errors"
	"net/http"

	"github.com/sentinelworks/gatekeeper/internal/auth/directory"
	"github.com/sentinelworks/gatekeeper/internal/auth/domain"
	"github.com/sentinelworks/gatekeeper/internal/auth/service"
	"github.com/sentinelworks/gatekeeper/pkg/httpx"
	"github.com/sentinelworks/gatekeeper/pkg/jwtx"
	"github.com/sentinelworks/gatekeeper/pkg/slogx"
)

// errorResponse is the wire shape of every error reply.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"errorDescription,omitempty"`
}

type apiError struct {
	status      int
	code        string
	description string
}

func (e apiError) write(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.status, errorResponse{Error: e.code, Description: e.description})
}

var (
	errInvalidRequest = apiError{http.StatusBadRequest, "invalid_request", "malformed or incomplete request body"}
	errServerError    = apiError{http.StatusInternalServerError, "server_error", "internal error"}
)

// writeServiceError maps a service-layer error onto an HTTP reply. Unknown
// errors are logged and answered with an opaque 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	switch {
	case errors.Is(err, domain.ErrBlankUsername), errors.Is(err, domain.ErrBlankPassword):
		errInvalidRequest.write(w)

	case errors.Is(err, directory.ErrInvalidCredentials):
		apiError{http.StatusUnauthorized, "invalid_credentials", "username or password is incorrect"}.write(w)
	case errors.Is(err, directory.ErrAccountLocked):
		apiError{http.StatusLocked, "account_locked", "account is locked"}.write(w)
	case errors.Is(err, directory.ErrAccountDisabled):
		apiError{http.StatusForbidden, "account_disabled", "account is disabled"}.write(w)
	case errors.Is(err, directory.ErrUnavailable):
		apiError{http.StatusServiceUnavailable, "directory_unavailable", "user directory is unreachable"}.write(w)

	case errors.Is(err, jwtx.ErrExpired):
		apiError{http.StatusUnauthorized, "token_expired", "token has expired"}.write(w)
	case errors.Is(err, jwtx.ErrMalformed),
		errors.Is(err, jwtx.ErrSignatureInvalid),
		errors.Is(err, jwtx.ErrWrongType),
		errors.Is(err, jwtx.ErrIssuer):
		apiError{http.StatusUnauthorized, "invalid_token", "token is not valid"}.write(w)

	case errors.Is(err, service.ErrTokenRevoked):
		apiError{http.StatusUnauthorized, "token_revoked", "token has been revoked"}.write(w)
	case errors.Is(err, service.ErrTokenMismatch):
		apiError{http.StatusUnauthorized, "token_mismatch", "token does not match the active session"}.write(w)
	case errors.Is(err, service.ErrSessionNotFound):
		apiError{http.StatusUnauthorized, "session_not_found", "no active session for this token"}.write(w)

	case errors.Is(err, service.ErrWeakPassword):
		apiError{http.StatusBadRequest, "weak_password", err.Error()}.write(w)
	case errors.Is(err, service.ErrResetTokenExpired):
		apiError{http.StatusBadRequest, "expired_reset_token", "reset token has expired"}.write(w)
	case errors.Is(err, service.ErrResetTokenInvalid):
		apiError{http.StatusBadRequest, "invalid_reset_token", "reset token is not valid"}.write(w)
	case errors.Is(err, service.ErrCurrentPasswordMismatch):
		apiError{http.StatusBadRequest, "current_password_mismatch", "current password is incorrect"}.write(w)
	case errors.Is(err, service.ErrPasswordChangeUnsupported):
		apiError{http.StatusNotImplemented, "password_change_unsupported", "the configured directory cannot change passwords"}.write(w)

	default:
		log.Error("unhandled service error", "error", err)
		errServerError.write(w)
	}
}
