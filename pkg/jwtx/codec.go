package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sentinelworks/gatekeeper/pkg/idx"
)

var (
	ErrMalformed        = errors.New("jwtx: malformed token")
	ErrSignatureInvalid = errors.New("jwtx: invalid signature")
	ErrExpired          = errors.New("jwtx: token expired")
	ErrWrongType        = errors.New("jwtx: wrong token type")
	ErrIssuer           = errors.New("jwtx: issuer mismatch")
)

// Codec signs and verifies session tokens. Access and refresh tokens are
// signed with distinct HMAC keys; the refresh key is derived from the base
// secret, so configuration stays a single value.
type Codec struct {
	accessKey  []byte
	refreshKey []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewCodec(secret, issuer string, accessTTL, refreshTTL time.Duration) *Codec {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}
	return &Codec{
		accessKey:  []byte(secret),
		refreshKey: []byte(secret + "-refresh"),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Issue generates an independent access/refresh token pair for the identity
// on the given device. Each token carries a fresh jti.
func (c *Codec) Issue(id Identity, deviceID string) (Pair, error) {
	now := time.Now().UTC()

	accessExpiry := now.Add(c.accessTTL)
	accessToken, err := c.sign(id, deviceID, now, accessExpiry, TokenTypeAccess, c.accessKey)
	if err != nil {
		return Pair{}, fmt.Errorf("jwtx: sign access token: %w", err)
	}

	refreshExpiry := now.Add(c.refreshTTL)
	refreshToken, err := c.sign(id, deviceID, now, refreshExpiry, TokenTypeRefresh, c.refreshKey)
	if err != nil {
		return Pair{}, fmt.Errorf("jwtx: sign refresh token: %w", err)
	}

	return Pair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: refreshExpiry,
		TokenType:        "Bearer",
	}, nil
}

// Validate verifies the raw token against the key for the expected type and
// returns its claims. The tokenType claim is checked only after signature
// verification; a tampered type claim already fails the signature check.
func (c *Codec) Validate(raw string, want TokenType) (Claims, error) {
	key := c.accessKey
	if want == TokenTypeRefresh {
		key = c.refreshKey
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return key, nil
		},
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return Claims{}, mapParseError(err)
	}

	if claims.TokenType != want {
		return Claims{}, ErrWrongType
	}

	return claims, nil
}

func (c *Codec) sign(
	id Identity,
	deviceID string,
	issuedAt, expiresAt time.Time,
	typ TokenType,
	key []byte,
) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        idx.New().String(),
			Subject:   id.Username,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:    id.UserID,
		Username:  id.Username,
		Email:     id.Email,
		Roles:     id.Roles,
		DeviceID:  deviceID,
		TokenType: typ,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
}
