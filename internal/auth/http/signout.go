package http

import (
	"net/http"

	"github.com/sentinelworks/gatekeeper/internal/auth/service"
	"github.com/sentinelworks/gatekeeper/pkg/httpx"
)

// SignOutHandler serves POST /v1/auth/signout.
type SignOutHandler struct {
	AuthService *service.AuthService
}

type signOutRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

func (h *SignOutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req signOutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.AccessToken == "" {
		errInvalidRequest.write(w)
		return
	}

	if err := h.AuthService.SignOut(r.Context(), req.AccessToken, req.RefreshToken); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
