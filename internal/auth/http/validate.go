package http

import (
	"net/http"
	"time"

	"github.com/sentinelworks/gatekeeper/internal/auth/service"
	"github.com/sentinelworks/gatekeeper/pkg/httpx"
)

// ValidateHandler serves POST /v1/auth/validate. Resource servers call it to
// check an access token they received.
type ValidateHandler struct {
	AuthService *service.AuthService
}

type validateRequest struct {
	AccessToken string `json:"accessToken"`
}

type validateResponse struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	DeviceID  string    `json:"deviceId,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *ValidateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.AccessToken == "" {
		errInvalidRequest.write(w)
		return
	}

	claims, err := h.AuthService.Validate(r.Context(), req.AccessToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, validateResponse{
		UserID:    claims.UserID,
		Username:  claims.Username,
		Email:     claims.Email,
		Roles:     claims.Roles,
		DeviceID:  claims.DeviceID,
		ExpiresAt: claims.ExpiresAt.Time,
	})
}
