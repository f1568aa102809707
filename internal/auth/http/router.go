// Package http is the REST edge of the service. Handlers stay thin: decode,
// call the service layer, map the error.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sentinelworks/gatekeeper/internal/auth/directory"
	"github.com/sentinelworks/gatekeeper/internal/auth/domain"
	"github.com/sentinelworks/gatekeeper/internal/auth/service"
	"github.com/sentinelworks/gatekeeper/pkg/httpx"
	"github.com/sentinelworks/gatekeeper/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	AuthService     *service.AuthService
	PasswordService *service.PasswordService
	Directory       directory.Service
	SessionStore    Pinger
	TokenStore      Pinger
}

func NewRouter(buildVersion string, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		requestMetaMiddleware,
	}

	return r
}

// requestMetaMiddleware records the client IP and user agent on the context
// for the audit trail.
func requestMetaMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := domain.WithRequestMeta(req.Context(), domain.RequestMeta{
			IP:        httpx.ClientIP(req),
			UserAgent: req.UserAgent(),
		})
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerPassword()
	r.registerSystem()
}

// ServeHTTP applies the global middleware chain in front of the mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	// Sign-in carries credentials; keep the brute-force window tight.
	r.Mux.Handle("POST /v1/auth/signin",
		httpx.Chain(&SignInHandler{AuthService: r.AuthService},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(&RefreshHandler{AuthService: r.AuthService},
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("POST /v1/auth/signout",
		httpx.Chain(&SignOutHandler{AuthService: r.AuthService},
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("POST /v1/auth/validate",
		httpx.Chain(&ValidateHandler{AuthService: r.AuthService},
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerPassword() {
	r.Mux.Handle("POST /v1/auth/password/recover",
		httpx.Chain(&RecoverHandler{PasswordService: r.PasswordService},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST /v1/auth/password/reset",
		httpx.Chain(&ResetHandler{PasswordService: r.PasswordService},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST /v1/auth/password/update",
		httpx.Chain(&UpdateHandler{PasswordService: r.PasswordService},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.SessionStore, r.TokenStore, r.Directory))
}
