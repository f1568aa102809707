package http

import (
	"net/http"

	"github.com/sentinelworks/gatekeeper/internal/auth/service"
	"github.com/sentinelworks/gatekeeper/pkg/httpx"
)

// RefreshHandler serves POST /v1/auth/refresh.
type RefreshHandler struct {
	AuthService *service.AuthService
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		errInvalidRequest.write(w)
		return
	}

	pair, err := h.AuthService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        pair.TokenType,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}
