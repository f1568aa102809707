package http

import (
	"context"
	"net/http"
	"time"

	"github.com/sentinelworks/gatekeeper/internal/auth/directory"
	"github.com/sentinelworks/gatekeeper/pkg/httpx"
)

// Pinger is the connectivity probe implemented by the backing stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthChecks struct {
	SessionStore string `json:"sessionStore,omitempty"`
	TokenStore   string `json:"tokenStore,omitempty"`
	Directory    string `json:"directory,omitempty"`
}

type healthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *healthChecks `json:"checks,omitempty"`
}

// LivezHandler answers 200 whenever the process is up.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, healthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler checks the session store, the token store and the directory.
// Any failing dependency degrades the service to 503.
func ReadyzHandler(
	startTime time.Time,
	version string,
	sessionStore Pinger,
	tokenStore Pinger,
	dir directory.Service,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &healthChecks{
			SessionStore: "ok",
			TokenStore:   "ok",
			Directory:    "ok",
		}
		status := "ok"
		code := http.StatusOK

		if err := sessionStore.Ping(r.Context()); err != nil {
			checks.SessionStore = "error: " + err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		if err := tokenStore.Ping(r.Context()); err != nil {
			checks.TokenStore = "error: " + err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		if !dir.IsAvailable(r.Context()) {
			checks.Directory = "error: unreachable"
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, healthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
