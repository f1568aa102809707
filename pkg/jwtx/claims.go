package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType discriminates access tokens from refresh tokens. The type lives
// in the signed claims, so a token can never be replayed in the wrong role
// even when both secrets leak together.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Default token TTLs. Short access tokens bound the blast radius of a stolen
// bearer token; the refresh TTL is the real session length.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Claims are the signed token claims shared by access and refresh tokens.
// The jti (RegisteredClaims.ID) is the identity key for revocation and
// session matching.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"userId,omitempty"`
	Username  string    `json:"username,omitempty"`
	Email     string    `json:"email,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	DeviceID  string    `json:"deviceId,omitempty"`
	TokenType TokenType `json:"tokenType,omitempty"`
}

// JTI returns the unique token identifier.
func (c Claims) JTI() string { return c.ID }

// RemainingLifetime reports how long the token stays naturally valid from
// now. Zero or negative means already expired. Used as the TTL for
// revocation entries and session records so stores prune themselves.
func (c Claims) RemainingLifetime(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Time.Sub(now)
}

// Identity is the directory-resolved user identity embedded into tokens.
type Identity struct {
	UserID   string
	Username string
	Email    string
	Roles    []string
}

// Pair bundles a freshly issued access/refresh token pair.
type Pair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	TokenType        string    `json:"tokenType"`
}
