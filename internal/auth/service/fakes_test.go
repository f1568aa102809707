package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sentinelworks/gatekeeper/internal/auth/domain"
	"github.com/sentinelworks/gatekeeper/internal/auth/store"
	"github.com/sentinelworks/gatekeeper/pkg/jwtx"
)

func claimsFor(userID string) jwtx.Claims {
	c := jwtx.Claims{UserID: userID}
	c.ID = "jti-" + userID
	return c
}

type fakeSessions struct {
	mu sync.Mutex
	m  map[string]jwtx.Claims
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{m: make(map[string]jwtx.Claims)}
}

func sessionKey(userID, deviceID string) string { return userID + "/" + deviceID }

func (f *fakeSessions) Store(_ context.Context, userID, deviceID string, claims jwtx.Claims, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[sessionKey(userID, deviceID)] = claims
	return nil
}

func (f *fakeSessions) Retrieve(_ context.Context, userID, deviceID string) (jwtx.Claims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claims, ok := f.m[sessionKey(userID, deviceID)]
	if !ok {
		return jwtx.Claims{}, store.ErrNotFound
	}
	return claims, nil
}

func (f *fakeSessions) Delete(_ context.Context, userID, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.m, sessionKey(userID, deviceID))
	return nil
}

func (f *fakeSessions) DeleteAll(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.m {
		if strings.HasPrefix(key, userID+"/") {
			delete(f.m, key)
		}
	}
	return nil
}

func (f *fakeSessions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.m)
}

type fakeRevocations struct {
	mu sync.Mutex
	m  map[string]time.Time
}

func newFakeRevocations() *fakeRevocations {
	return &fakeRevocations{m: make(map[string]time.Time)}
}

func (f *fakeRevocations) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[jti] = time.Now().Add(ttl)
	return nil
}

func (f *fakeRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	expiry, ok := f.m[jti]
	return ok && time.Now().Before(expiry), nil
}

type fakeResetTokens struct {
	mu        sync.Mutex
	byID      map[string]domain.PasswordResetToken
	createErr error
}

func newFakeResetTokens() *fakeResetTokens {
	return &fakeResetTokens{byID: make(map[string]domain.PasswordResetToken)}
}

func (f *fakeResetTokens) Create(_ context.Context, t domain.PasswordResetToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.byID[t.ID] = t
	return nil
}

func (f *fakeResetTokens) GetByToken(_ context.Context, token string) (domain.PasswordResetToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.byID {
		if t.Token == token {
			return t, nil
		}
	}
	return domain.PasswordResetToken{}, store.ErrNotFound
}

func (f *fakeResetTokens) MarkUsed(_ context.Context, id string, usedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok || t.Status != domain.ResetTokenPending {
		return store.ErrNotFound
	}
	t.Status = domain.ResetTokenUsed
	t.UsedAt = &usedAt
	f.byID[id] = t
	return nil
}

func (f *fakeResetTokens) CancelPendingForUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, t := range f.byID {
		if t.UserID == userID && t.Status == domain.ResetTokenPending {
			t.Status = domain.ResetTokenCancelled
			f.byID[id] = t
		}
	}
	return nil
}

func (f *fakeResetTokens) byStatus(status domain.ResetTokenStatus) []domain.PasswordResetToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PasswordResetToken
	for _, t := range f.byID {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

type fakeAuditLog struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (f *fakeAuditLog) Append(_ context.Context, e domain.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeAuditLog) ofType(typ domain.AuditEventType) []domain.AuditEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AuditEvent
	for _, e := range f.events {
		if e.EventType == typ {
			out = append(out, e)
		}
	}
	return out
}

type fakeDirectory struct {
	mu      sync.Mutex
	user    domain.AuthenticatedUser
	authErr error
	findErr error
}

func (f *fakeDirectory) Authenticate(_ context.Context, _ domain.Credentials) (domain.AuthenticatedUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.authErr != nil {
		return domain.AuthenticatedUser{}, f.authErr
	}
	return f.user, nil
}

func (f *fakeDirectory) FindByUsername(_ context.Context, _ string) (domain.AuthenticatedUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return domain.AuthenticatedUser{}, f.findErr
	}
	return f.user, nil
}

func (f *fakeDirectory) FindByEmail(ctx context.Context, email string) (domain.AuthenticatedUser, error) {
	return f.FindByUsername(ctx, email)
}

func (f *fakeDirectory) IsAvailable(context.Context) bool { return true }

func (f *fakeDirectory) setUser(u domain.AuthenticatedUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = u
}

// fakePasswordDirectory adds the credential-store capability.
type fakePasswordDirectory struct {
	fakeDirectory

	verifyErr error
	changeErr error
	changed   map[string]string
}

func (f *fakePasswordDirectory) VerifyPassword(_ context.Context, _, _ string) error {
	return f.verifyErr
}

func (f *fakePasswordDirectory) ChangePassword(_ context.Context, userID, newPassword string) error {
	if f.changeErr != nil {
		return f.changeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.changed == nil {
		f.changed = make(map[string]string)
	}
	f.changed[userID] = newPassword
	return nil
}

type fakeNotifier struct {
	mu            sync.Mutex
	notifications []ResetNotification
	err           error
}

func (f *fakeNotifier) PasswordResetRequested(_ context.Context, n ResetNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeNotifier) sent() []ResetNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ResetNotification(nil), f.notifications...)
}
