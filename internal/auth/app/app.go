package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentinelworks/gatekeeper/internal/auth/directory"
	httpapi "github.com/sentinelworks/gatekeeper/internal/auth/http"
	"github.com/sentinelworks/gatekeeper/internal/auth/notify"
	"github.com/sentinelworks/gatekeeper/internal/auth/service"
	redisstore "github.com/sentinelworks/gatekeeper/internal/auth/store/drivers/redis"
	"github.com/sentinelworks/gatekeeper/internal/auth/store/drivers/sqlite"
	"github.com/sentinelworks/gatekeeper/pkg/jwtx"
	"github.com/sentinelworks/gatekeeper/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       *sqlite.Store
	sessions *redisstore.Store
	dir      directory.Service
	notifier service.ResetNotifier
	closers  []func() error

	auditor         *service.Auditor
	authService     *service.AuthService
	passwordService *service.PasswordService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gatekeeper",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initSessions(); err != nil {
		return nil, err
	}
	if err := app.initDirectory(); err != nil {
		return nil, err
	}
	if err := app.initNotifier(); err != nil {
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.logger.Info("gatekeeper starting",
		"port", app.cfg.Port,
		"provider", app.cfg.Provider,
		"version", BuildVersion,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains the server, flushes audit writes and closes every backend.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gatekeeper...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.auditor.Wait()

	var failed error
	for _, close := range app.closers {
		if err := close(); err != nil {
			app.logger.Error("error closing dependency", "error", err)
			failed = err
		}
	}

	app.logger.Info("gatekeeper stopped")
	return failed
}

func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, db.Close)

	if err := db.ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initSessions() error {
	sessions, err := redisstore.NewStore(redisstore.Config{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
		DB:       app.cfg.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.sessions = sessions
	app.closers = append(app.closers, sessions.Close)
	return nil
}

func (app *Application) initDirectory() error {
	var backend directory.Service
	switch app.cfg.Provider {
	case ProviderLDAP:
		backend = directory.NewLDAP(directory.LDAPConfig{
			URL:          app.cfg.LDAPURL,
			BindDN:       app.cfg.LDAPBindDN,
			BindPassword: app.cfg.LDAPBindPassword,
			BaseDN:       app.cfg.LDAPBaseDN,
			UserFilter:   app.cfg.LDAPUserFilter,
			EmailFilter:  app.cfg.LDAPEmailFilter,
		})
	case ProviderActiveDirectory:
		backend = directory.NewActiveDirectory(directory.ActiveDirectoryConfig{
			URL:          app.cfg.ADURL,
			Domain:       app.cfg.ADDomain,
			BindDN:       app.cfg.ADBindDN,
			BindPassword: app.cfg.ADBindPassword,
			BaseDN:       app.cfg.ADBaseDN,
		})
	case ProviderKeycloak:
		backend = directory.NewKeycloak(directory.KeycloakConfig{
			BaseURL:           app.cfg.KeycloakBaseURL,
			Realm:             app.cfg.KeycloakRealm,
			ClientID:          app.cfg.KeycloakClientID,
			ClientSecret:      app.cfg.KeycloakClientSecret,
			AdminClientID:     app.cfg.KeycloakAdminClientID,
			AdminClientSecret: app.cfg.KeycloakAdminClientSecret,
		})
	default:
		return fmt.Errorf("unknown AUTH_PROVIDER %q", app.cfg.Provider)
	}

	app.dir = directory.NewResilient(backend, directory.ResilienceConfig{
		Timeout:          app.cfg.DirectoryTimeout,
		MaxRetries:       app.cfg.DirectoryMaxRetries,
		RetryInterval:    app.cfg.DirectoryRetryInterval,
		FailureThreshold: app.cfg.DirectoryFailureThreshold,
		OpenDuration:     app.cfg.DirectoryOpenDuration,
	}, app.logger)

	app.logger.Info("directory backend ready", "provider", app.cfg.Provider)
	return nil
}

func (app *Application) initNotifier() error {
	if app.cfg.AMQPURL == "" {
		app.logger.Warn("AMQP_URL not set, reset notifications will only be logged")
		app.notifier = logNotifier{logger: app.logger}
		return nil
	}

	notifier, err := notify.NewResetNotifier(notify.AMQPConfig{
		URL:   app.cfg.AMQPURL,
		Queue: app.cfg.AMQPResetQueue,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to amqp: %w", err)
	}
	app.notifier = notifier
	app.closers = append(app.closers, notifier.Close)
	return nil
}

func (app *Application) initServices() {
	codec := jwtx.NewCodec(app.cfg.JWTSecret, app.cfg.Issuer, app.cfg.AccessTTL, app.cfg.RefreshTTL)

	app.auditor = service.NewAuditor(app.db.AuditLog(), app.logger)

	app.authService = service.NewAuthService(
		codec,
		app.dir,
		app.sessions.Sessions(),
		app.sessions.Revocations(),
		app.auditor,
		app.logger,
	)

	policy := service.DefaultPasswordPolicy()
	if app.cfg.PasswordMinLength > 0 {
		policy.MinLength = app.cfg.PasswordMinLength
	}
	policy.RequireSymbol = app.cfg.PasswordRequireSymbol

	app.passwordService = service.NewPasswordService(
		app.dir,
		app.db.ResetTokens(),
		app.sessions.Sessions(),
		app.notifier,
		app.auditor,
		policy,
		app.cfg.ResetTokenTTL,
		app.cfg.ResetBaseURL,
		app.logger,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.logger)
	router.AuthService = app.authService
	router.PasswordService = app.passwordService
	router.Directory = app.dir
	router.SessionStore = app.sessions
	router.TokenStore = app.db
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// logNotifier stands in for the broker in local development.
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) PasswordResetRequested(_ context.Context, notification service.ResetNotification) error {
	n.logger.Info("password reset requested",
		"email", notification.Email,
		"reset_url", notification.ResetURL,
		"expires_at", notification.ExpiresAt,
	)
	return nil
}
