package http

import (
	"net/http"
	"time"

	"github.com/sentinelworks/gatekeeper/internal/auth/domain"
	"github.com/sentinelworks/gatekeeper/internal/auth/service"
	"github.com/sentinelworks/gatekeeper/pkg/httpx"
)

// SignInHandler serves POST /v1/auth/signin.
type SignInHandler struct {
	AuthService *service.AuthService
}

type signInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId"`
}

type tokenResponse struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	TokenType        string    `json:"tokenType"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type userResponse struct {
	UserID    string   `json:"userId"`
	Username  string   `json:"username"`
	Email     string   `json:"email,omitempty"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

type signInResponse struct {
	tokenResponse
	User userResponse `json:"user"`
}

func (h *SignInHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		errInvalidRequest.write(w)
		return
	}

	creds, err := domain.NewCredentials(req.Username, req.Password, req.DeviceID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	pair, user, err := h.AuthService.SignIn(r.Context(), creds)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, signInResponse{
		tokenResponse: tokenResponse{
			AccessToken:      pair.AccessToken,
			RefreshToken:     pair.RefreshToken,
			TokenType:        pair.TokenType,
			AccessExpiresAt:  pair.AccessExpiresAt,
			RefreshExpiresAt: pair.RefreshExpiresAt,
		},
		User: userResponse{
			UserID:    user.UserID,
			Username:  user.Username,
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Roles:     user.Roles,
		},
	})
}
