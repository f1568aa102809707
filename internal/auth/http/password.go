package http

import (
	"net/http"

	"github.com/sentinelworks/gatekeeper/internal/auth/service"
	"github.com/sentinelworks/gatekeeper/pkg/httpx"
)

// RecoverHandler serves POST /v1/auth/password/recover. It always answers
// 202 for well-formed requests so account existence cannot be probed.
type RecoverHandler struct {
	PasswordService *service.PasswordService
}

type recoverRequest struct {
	Email string `json:"email"`
}

func (h *RecoverHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Email == "" {
		errInvalidRequest.write(w)
		return
	}

	if err := h.PasswordService.Recover(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ResetHandler serves POST /v1/auth/password/reset.
type ResetHandler struct {
	PasswordService *service.PasswordService
}

type resetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *ResetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Token == "" || req.NewPassword == "" {
		errInvalidRequest.write(w)
		return
	}

	if err := h.PasswordService.Reset(r.Context(), req.Token, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateHandler serves POST /v1/auth/password/update.
type UpdateHandler struct {
	PasswordService *service.PasswordService
}

type updateRequest struct {
	Username        string `json:"username"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *UpdateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil ||
		req.Username == "" || req.CurrentPassword == "" || req.NewPassword == "" {
		errInvalidRequest.write(w)
		return
	}

	if err := h.PasswordService.Update(r.Context(), req.Username, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
