package jwtx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testIdentity() Identity {
	return Identity{
		UserID:   "01J0USER",
		Username: "alice",
		Email:    "alice@example.com",
		Roles:    []string{"ROLE_USER", "ROLE_AUDITOR"},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewCodec("test-secret", "gatekeeper-test", time.Minute, time.Hour)

	pair, err := codec.Issue(testIdentity(), "dev1")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "Bearer", pair.TokenType)
	require.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))

	t.Run("access token recovers identity", func(t *testing.T) {
		claims, err := codec.Validate(pair.AccessToken, TokenTypeAccess)
		require.NoError(t, err)
		require.Equal(t, "01J0USER", claims.UserID)
		require.Equal(t, "alice", claims.Username)
		require.Equal(t, "alice@example.com", claims.Email)
		require.Equal(t, []string{"ROLE_USER", "ROLE_AUDITOR"}, claims.Roles)
		require.Equal(t, "dev1", claims.DeviceID)
		require.Equal(t, TokenTypeAccess, claims.TokenType)
		require.NotEmpty(t, claims.JTI())
	})

	t.Run("refresh token recovers identity", func(t *testing.T) {
		claims, err := codec.Validate(pair.RefreshToken, TokenTypeRefresh)
		require.NoError(t, err)
		require.Equal(t, "01J0USER", claims.UserID)
		require.Equal(t, TokenTypeRefresh, claims.TokenType)
	})

	t.Run("access and refresh jtis are independent", func(t *testing.T) {
		access, err := codec.Validate(pair.AccessToken, TokenTypeAccess)
		require.NoError(t, err)
		refresh, err := codec.Validate(pair.RefreshToken, TokenTypeRefresh)
		require.NoError(t, err)
		require.NotEqual(t, access.JTI(), refresh.JTI())
	})
}

func TestCodecKeysAreDistinct(t *testing.T) {
	t.Parallel()

	codec := NewCodec("test-secret", "gatekeeper-test", time.Minute, time.Hour)
	pair, err := codec.Issue(testIdentity(), "dev1")
	require.NoError(t, err)

	// A refresh token verified against the access key (and vice versa) must
	// fail on the signature, before the type claim is even consulted.
	_, err = codec.Validate(pair.RefreshToken, TokenTypeAccess)
	require.ErrorIs(t, err, ErrSignatureInvalid)

	_, err = codec.Validate(pair.AccessToken, TokenTypeRefresh)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestCodecWrongType(t *testing.T) {
	t.Parallel()

	// Same key for both types isolates the tokenType claim check.
	codec := NewCodec("test-secret", "gatekeeper-test", time.Minute, time.Hour)

	now := time.Now().UTC()
	raw, err := codec.sign(testIdentity(), "dev1", now, now.Add(time.Hour), TokenTypeAccess, codec.refreshKey)
	require.NoError(t, err)

	_, err = codec.Validate(raw, TokenTypeRefresh)
	require.ErrorIs(t, err, ErrWrongType)
}

func TestCodecExpired(t *testing.T) {
	t.Parallel()

	codec := NewCodec("test-secret", "gatekeeper-test", time.Minute, time.Hour)

	now := time.Now().UTC()
	raw, err := codec.sign(testIdentity(), "dev1", now.Add(-2*time.Hour), now.Add(-time.Hour), TokenTypeAccess, codec.accessKey)
	require.NoError(t, err)

	_, err = codec.Validate(raw, TokenTypeAccess)
	require.ErrorIs(t, err, ErrExpired)
}

func TestCodecMalformed(t *testing.T) {
	t.Parallel()

	codec := NewCodec("test-secret", "gatekeeper-test", time.Minute, time.Hour)

	_, err := codec.Validate("not-a-jwt", TokenTypeAccess)
	require.ErrorIs(t, err, ErrMalformed)

	_, err = codec.Validate("", TokenTypeAccess)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestCodecTamperedSignature(t *testing.T) {
	t.Parallel()

	codec := NewCodec("test-secret", "gatekeeper-test", time.Minute, time.Hour)
	other := NewCodec("other-secret", "gatekeeper-test", time.Minute, time.Hour)

	pair, err := other.Issue(testIdentity(), "dev1")
	require.NoError(t, err)

	_, err = codec.Validate(pair.AccessToken, TokenTypeAccess)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestCodecIssuerMismatch(t *testing.T) {
	t.Parallel()

	issuing := NewCodec("test-secret", "other-issuer", time.Minute, time.Hour)
	verifying := NewCodec("test-secret", "gatekeeper-test", time.Minute, time.Hour)

	pair, err := issuing.Issue(testIdentity(), "dev1")
	require.NoError(t, err)

	_, err = verifying.Validate(pair.AccessToken, TokenTypeAccess)
	require.ErrorIs(t, err, ErrIssuer)
}

func TestRemainingLifetime(t *testing.T) {
	t.Parallel()

	codec := NewCodec("test-secret", "gatekeeper-test", time.Minute, time.Hour)
	pair, err := codec.Issue(testIdentity(), "dev1")
	require.NoError(t, err)

	claims, err := codec.Validate(pair.RefreshToken, TokenTypeRefresh)
	require.NoError(t, err)

	remaining := claims.RemainingLifetime(time.Now().UTC())
	require.Greater(t, remaining, 59*time.Minute)
	require.LessOrEqual(t, remaining, time.Hour)

	require.Equal(t, time.Duration(0), Claims{}.RemainingLifetime(time.Now()))
}
