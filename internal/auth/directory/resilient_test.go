package directory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentinelworks/gatekeeper/internal/auth/domain"
)

type stubBackend struct {
	mu sync.Mutex

	user      domain.AuthenticatedUser
	authErr   error
	findErrs  []error
	authCalls int
	findCalls int
	delay     time.Duration
	available bool
}

func (s *stubBackend) Authenticate(ctx context.Context, _ domain.Credentials) (domain.AuthenticatedUser, error) {
	s.mu.Lock()
	s.authCalls++
	err := s.authErr
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.AuthenticatedUser{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.AuthenticatedUser{}, err
	}
	return s.user, nil
}

func (s *stubBackend) FindByUsername(ctx context.Context, _ string) (domain.AuthenticatedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.findCalls++
	if len(s.findErrs) > 0 {
		err := s.findErrs[0]
		s.findErrs = s.findErrs[1:]
		if err != nil {
			return domain.AuthenticatedUser{}, err
		}
	}
	return s.user, nil
}

func (s *stubBackend) FindByEmail(ctx context.Context, email string) (domain.AuthenticatedUser, error) {
	return s.FindByUsername(ctx, email)
}

func (s *stubBackend) IsAvailable(context.Context) bool { return s.available }

func (s *stubBackend) calls() (auth, find int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authCalls, s.findCalls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestResilientCredentialFailuresDoNotTrip(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{authErr: ErrInvalidCredentials}
	res := NewResilient(stub, ResilienceConfig{FailureThreshold: 3}, discardLogger())

	creds := domain.Credentials{Username: "alice", Password: "wrong", DeviceID: domain.DefaultDeviceID}
	for range 10 {
		_, err := res.Authenticate(context.Background(), creds)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Backend still reachable once the password is right.
	stub.mu.Lock()
	stub.authErr = nil
	stub.user = domain.AuthenticatedUser{UserID: "u1"}
	stub.mu.Unlock()

	user, err := res.Authenticate(context.Background(), creds)
	require.NoError(t, err)
	require.Equal(t, "u1", user.UserID)
}

func TestResilientTransientFailuresOpenBreaker(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{authErr: ErrUnavailable}
	res := NewResilient(stub, ResilienceConfig{FailureThreshold: 3, OpenDuration: time.Minute}, discardLogger())

	creds := domain.Credentials{Username: "alice", Password: "pw", DeviceID: domain.DefaultDeviceID}
	for range 3 {
		_, err := res.Authenticate(context.Background(), creds)
		require.ErrorIs(t, err, ErrUnavailable)
	}

	authBefore, _ := stub.calls()

	// Breaker is open now: calls fail fast without touching the backend.
	_, err := res.Authenticate(context.Background(), creds)
	require.ErrorIs(t, err, ErrUnavailable)

	authAfter, _ := stub.calls()
	require.Equal(t, authBefore, authAfter)
	require.False(t, res.IsAvailable(context.Background()))
}

func TestResilientBreakerRecovers(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{authErr: ErrUnavailable, available: true}
	res := NewResilient(stub, ResilienceConfig{FailureThreshold: 2, OpenDuration: 50 * time.Millisecond}, discardLogger())

	creds := domain.Credentials{Username: "alice", Password: "pw", DeviceID: domain.DefaultDeviceID}
	for range 2 {
		_, err := res.Authenticate(context.Background(), creds)
		require.ErrorIs(t, err, ErrUnavailable)
	}

	stub.mu.Lock()
	stub.authErr = nil
	stub.user = domain.AuthenticatedUser{UserID: "u1"}
	stub.mu.Unlock()

	time.Sleep(80 * time.Millisecond)

	user, err := res.Authenticate(context.Background(), creds)
	require.NoError(t, err)
	require.Equal(t, "u1", user.UserID)
}

func TestResilientLookupsRetryTransientFaults(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{
		user:     domain.AuthenticatedUser{UserID: "u1"},
		findErrs: []error{ErrUnavailable, ErrUnavailable, nil},
	}
	res := NewResilient(stub, ResilienceConfig{
		MaxRetries:       3,
		RetryInterval:    time.Millisecond,
		FailureThreshold: 10,
	}, discardLogger())

	user, err := res.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, "u1", user.UserID)

	_, find := stub.calls()
	require.Equal(t, 3, find)
}

func TestResilientLookupsDoNotRetryNotFound(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{findErrs: []error{ErrUserNotFound, nil}}
	res := NewResilient(stub, ResilienceConfig{MaxRetries: 3, RetryInterval: time.Millisecond}, discardLogger())

	_, err := res.FindByUsername(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)

	_, find := stub.calls()
	require.Equal(t, 1, find)
}

func TestResilientAuthenticateNeverRetries(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{authErr: ErrUnavailable}
	res := NewResilient(stub, ResilienceConfig{MaxRetries: 5, FailureThreshold: 10}, discardLogger())

	_, err := res.Authenticate(context.Background(), domain.Credentials{Username: "alice", Password: "pw"})
	require.ErrorIs(t, err, ErrUnavailable)

	auth, _ := stub.calls()
	require.Equal(t, 1, auth)
}

func TestResilientTimeout(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{delay: 500 * time.Millisecond}
	res := NewResilient(stub, ResilienceConfig{Timeout: 20 * time.Millisecond, FailureThreshold: 10}, discardLogger())

	start := time.Now()
	_, err := res.Authenticate(context.Background(), domain.Credentials{Username: "alice", Password: "pw"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestPasswordsUnwrapsDecorators(t *testing.T) {
	t.Parallel()

	kc := NewKeycloak(KeycloakConfig{BaseURL: "http://localhost", Realm: "test"})
	res := NewResilient(kc, ResilienceConfig{}, discardLogger())

	ps, ok := Passwords(res)
	require.True(t, ok)
	require.NotNil(t, ps)

	_, ok = Passwords(NewResilient(&stubBackend{}, ResilienceConfig{}, discardLogger()))
	require.False(t, ok)
}

func TestResilientUnwrap(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{}
	res := NewResilient(stub, ResilienceConfig{}, discardLogger())
	require.Same(t, Service(stub), res.Unwrap())
}

var errSentinel = errors.New("sentinel")

func TestIsTransient(t *testing.T) {
	t.Parallel()

	require.True(t, isTransient(ErrUnavailable))
	require.True(t, isTransient(context.DeadlineExceeded))
	require.False(t, isTransient(ErrInvalidCredentials))
	require.False(t, isTransient(errSentinel))
}
