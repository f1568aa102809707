package app

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sentinelworks/gatekeeper/pkg/jwtx"
)

// Directory provider selectors for AUTH_PROVIDER.
const (
	ProviderLDAP            = "ldap"
	ProviderActiveDirectory = "activedirectory"
	ProviderKeycloak        = "keycloak"
)

type Config struct {
	// Token signing
	Issuer     string        // Issuer claim for tokens
	JWTSecret  string        // Required: HMAC secret, refresh key is derived from it
	AccessTTL  time.Duration // Access token lifetime (default: 15m)
	RefreshTTL time.Duration // Refresh token lifetime (default: 168h)

	// Directory backend
	Provider string // ldap, activedirectory or keycloak (default: ldap)

	LDAPURL          string
	LDAPBindDN       string
	LDAPBindPassword string
	LDAPBaseDN       string
	LDAPUserFilter   string
	LDAPEmailFilter  string

	ADURL          string
	ADDomain       string
	ADBindDN       string
	ADBindPassword string
	ADBaseDN       string

	KeycloakBaseURL           string
	KeycloakRealm             string
	KeycloakClientID          string
	KeycloakClientSecret      string
	KeycloakAdminClientID     string
	KeycloakAdminClientSecret string

	// Resilience around the directory
	DirectoryTimeout          time.Duration
	DirectoryMaxRetries       uint64
	DirectoryRetryInterval    time.Duration
	DirectoryFailureThreshold uint32
	DirectoryOpenDuration     time.Duration

	// Stores
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseFile  string // Path to SQLite database file (default: ./gatekeeper.db)

	// Password reset
	AMQPURL        string // Optional: reset notifications are logged when unset
	AMQPResetQueue string
	ResetTokenTTL  time.Duration
	ResetBaseURL   string // Link base for reset emails

	// Password policy
	PasswordMinLength     int
	PasswordRequireSymbol bool

	Env                 string // Environment (dev, staging, prod) (default: dev)
	LogLevel            string // Log level (debug, info, warn, error) (default: info)
	LogFormat           string // Log format (json, text) (default: json)
	Port                int    // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration
}

func LoadConfig() Config {
	return Config{
		Issuer:     getEnvOrDefault("AUTH_ISSUER", "gatekeeper"),
		JWTSecret:  os.Getenv("AUTH_JWT_SECRET"),
		AccessTTL:  getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL: getEnvDurationOrDefault("AUTH_REFRESH_TOKEN_TTL", jwtx.DefaultRefreshTokenTTL),

		Provider: getEnvOrDefault("AUTH_PROVIDER", ProviderLDAP),

		LDAPURL:          os.Getenv("LDAP_URL"),
		LDAPBindDN:       os.Getenv("LDAP_BIND_DN"),
		LDAPBindPassword: os.Getenv("LDAP_BIND_PASSWORD"),
		LDAPBaseDN:       os.Getenv("LDAP_BASE_DN"),
		LDAPUserFilter:   os.Getenv("LDAP_USER_FILTER"),
		LDAPEmailFilter:  os.Getenv("LDAP_EMAIL_FILTER"),

		ADURL:          os.Getenv("AD_URL"),
		ADDomain:       os.Getenv("AD_DOMAIN"),
		ADBindDN:       os.Getenv("AD_BIND_DN"),
		ADBindPassword: os.Getenv("AD_BIND_PASSWORD"),
		ADBaseDN:       os.Getenv("AD_BASE_DN"),

		KeycloakBaseURL:           os.Getenv("KEYCLOAK_BASE_URL"),
		KeycloakRealm:             os.Getenv("KEYCLOAK_REALM"),
		KeycloakClientID:          os.Getenv("KEYCLOAK_CLIENT_ID"),
		KeycloakClientSecret:      os.Getenv("KEYCLOAK_CLIENT_SECRET"),
		KeycloakAdminClientID:     os.Getenv("KEYCLOAK_ADMIN_CLIENT_ID"),
		KeycloakAdminClientSecret: os.Getenv("KEYCLOAK_ADMIN_CLIENT_SECRET"),

		DirectoryTimeout:          getEnvDurationOrDefault("DIRECTORY_TIMEOUT", 5*time.Second),
		DirectoryMaxRetries:       uint64(getEnvIntOrDefault("DIRECTORY_MAX_RETRIES", 2)),
		DirectoryRetryInterval:    getEnvDurationOrDefault("DIRECTORY_RETRY_INTERVAL", 100*time.Millisecond),
		DirectoryFailureThreshold: uint32(getEnvIntOrDefault("DIRECTORY_FAILURE_THRESHOLD", 5)),
		DirectoryOpenDuration:     getEnvDurationOrDefault("DIRECTORY_OPEN_DURATION", 30*time.Second),

		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("REDIS_DB", 0),
		DatabaseFile:  getEnvOrDefault("AUTH_DATABASE_FILE", "gatekeeper.db"),

		AMQPURL:        os.Getenv("AMQP_URL"),
		AMQPResetQueue: os.Getenv("AMQP_RESET_QUEUE"),
		ResetTokenTTL:  getEnvDurationOrDefault("RESET_TOKEN_TTL", 30*time.Minute),
		ResetBaseURL:   getEnvOrDefault("RESET_BASE_URL", "http://localhost:8080/reset"),

		PasswordMinLength:     getEnvIntOrDefault("PASSWORD_MIN_LENGTH", 8),
		PasswordRequireSymbol: getEnvBoolOrDefault("PASSWORD_REQUIRE_SYMBOL", false),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

// Validate catches configuration that would only fail at first request time.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}

	switch c.Provider {
	case ProviderLDAP:
		if c.LDAPURL == "" || c.LDAPBaseDN == "" {
			return fmt.Errorf("provider %q requires LDAP_URL and LDAP_BASE_DN", c.Provider)
		}
	case ProviderActiveDirectory:
		if c.ADURL == "" || c.ADDomain == "" || c.ADBaseDN == "" {
			return fmt.Errorf("provider %q requires AD_URL, AD_DOMAIN and AD_BASE_DN", c.Provider)
		}
	case ProviderKeycloak:
		if c.KeycloakBaseURL == "" || c.KeycloakRealm == "" || c.KeycloakClientID == "" {
			return fmt.Errorf("provider %q requires KEYCLOAK_BASE_URL, KEYCLOAK_REALM and KEYCLOAK_CLIENT_ID", c.Provider)
		}
	default:
		return fmt.Errorf("unknown AUTH_PROVIDER %q", c.Provider)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	return defaultValue
}
