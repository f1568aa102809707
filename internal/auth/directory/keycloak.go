package directory

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sentinelworks/gatekeeper/internal/auth/domain"
)

// KeycloakConfig wires a Keycloak realm. The public client performs the
// password grant; the admin client (client_credentials) serves lookups and
// password writes.
type KeycloakConfig struct {
	BaseURL           string
	Realm             string
	ClientID          string
	ClientSecret      string
	AdminClientID     string
	AdminClientSecret string
	Timeout           time.Duration
}

// Keycloak authenticates through the realm's token endpoint and looks users
// up through the admin REST API. Because Keycloak owns the credential store
// it also implements PasswordService.
type Keycloak struct {
	cfg    KeycloakConfig
	client *http.Client

	mu          sync.Mutex
	adminToken  string
	adminExpiry time.Time
}

var (
	_ Service         = (*Keycloak)(nil)
	_ PasswordService = (*Keycloak)(nil)
)

func NewKeycloak(cfg KeycloakConfig) *Keycloak {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Keycloak{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (k *Keycloak) Authenticate(ctx context.Context, creds domain.Credentials) (domain.AuthenticatedUser, error) {
	tok, err := k.passwordGrant(ctx, creds.Username, creds.Password)
	if err != nil {
		return domain.AuthenticatedUser{}, err
	}

	claims, err := decodeTokenClaims(tok.AccessToken)
	if err != nil {
		return domain.AuthenticatedUser{}, fmt.Errorf("%w: token decode: %v", ErrUnavailable, err)
	}

	// Roles ride in the token; profile attributes come from userinfo so
	// they stay correct even when the client scope trims the token claims.
	info, err := k.userinfo(ctx, tok.AccessToken)
	if err != nil {
		return domain.AuthenticatedUser{}, err
	}

	user := domain.AuthenticatedUser{
		UserID:    claims.Subject,
		Username:  claims.PreferredUsername,
		Email:     claims.Email,
		FirstName: claims.GivenName,
		LastName:  claims.FamilyName,
		Groups:    claims.RealmAccess.Roles,
		Roles:     NormalizeRoles(claims.RealmAccess.Roles),
		Enabled:   true,
	}
	if info.PreferredUsername != "" {
		user.Username = info.PreferredUsername
	}
	if info.Email != "" {
		user.Email = info.Email
	}
	if info.GivenName != "" {
		user.FirstName = info.GivenName
	}
	if info.FamilyName != "" {
		user.LastName = info.FamilyName
	}
	return user, nil
}

// userinfo fetches the OIDC userinfo document with the freshly minted
// access token.
func (k *Keycloak) userinfo(ctx context.Context, accessToken string) (keycloakUserinfo, error) {
	endpoint := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/userinfo", k.cfg.BaseURL, k.cfg.Realm)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return keycloakUserinfo{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := k.client.Do(req)
	if err != nil {
		return keycloakUserinfo{}, fmt.Errorf("%w: userinfo: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return keycloakUserinfo{}, fmt.Errorf("%w: userinfo returned %d", ErrUnavailable, resp.StatusCode)
	}

	var info keycloakUserinfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return keycloakUserinfo{}, fmt.Errorf("%w: userinfo: %v", ErrUnavailable, err)
	}
	return info, nil
}

func (k *Keycloak) FindByUsername(ctx context.Context, username string) (domain.AuthenticatedUser, error) {
	return k.findUser(ctx, url.Values{"username": {username}, "exact": {"true"}})
}

func (k *Keycloak) FindByEmail(ctx context.Context, email string) (domain.AuthenticatedUser, error) {
	return k.findUser(ctx, url.Values{"email": {email}, "exact": {"true"}})
}

func (k *Keycloak) IsAvailable(ctx context.Context) bool {
	endpoint := fmt.Sprintf("%s/realms/%s/.well-known/openid-configuration", k.cfg.BaseURL, k.cfg.Realm)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// VerifyPassword runs the password grant and discards the tokens.
func (k *Keycloak) VerifyPassword(ctx context.Context, username, password string) error {
	_, err := k.passwordGrant(ctx, username, password)
	return err
}

// ChangePassword sets a new non-temporary password through the admin API.
func (k *Keycloak) ChangePassword(ctx context.Context, userID, newPassword string) error {
	body, err := json.Marshal(map[string]any{
		"type":      "password",
		"value":     newPassword,
		"temporary": false,
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/admin/realms/%s/users/%s/reset-password",
		k.cfg.BaseURL, k.cfg.Realm, url.PathEscape(userID))

	resp, err := k.adminDo(ctx, http.MethodPut, endpoint, strings.NewReader(string(body)), "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrUserNotFound
	default:
		return fmt.Errorf("%w: reset-password returned %d", ErrUnavailable, resp.StatusCode)
	}
}

type keycloakTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type keycloakError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

type keycloakTokenClaims struct {
	Subject           string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

type keycloakUserinfo struct {
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
}

type keycloakUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Enabled   bool   `json:"enabled"`
}

type keycloakRole struct {
	Name string `json:"name"`
}

func (k *Keycloak) passwordGrant(ctx context.Context, username, password string) (keycloakTokenResponse, error) {
	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {k.cfg.ClientID},
		"username":   {username},
		"password":   {password},
	}
	if k.cfg.ClientSecret != "" {
		form.Set("client_secret", k.cfg.ClientSecret)
	}
	return k.tokenRequest(ctx, form)
}

func (k *Keycloak) tokenRequest(ctx context.Context, form url.Values) (keycloakTokenResponse, error) {
	endpoint := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", k.cfg.BaseURL, k.cfg.Realm)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return keycloakTokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.client.Do(req)
	if err != nil {
		return keycloakTokenResponse{}, fmt.Errorf("%w: token endpoint: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return keycloakTokenResponse{}, fmt.Errorf("%w: token endpoint: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return keycloakTokenResponse{}, mapKeycloakGrantError(resp.StatusCode, raw)
	}

	var tok keycloakTokenResponse
	if err := json.Unmarshal(raw, &tok); err != nil {
		return keycloakTokenResponse{}, fmt.Errorf("%w: token endpoint: %v", ErrUnavailable, err)
	}
	return tok, nil
}

// mapKeycloakGrantError turns a failed grant into one of the credential
// sentinels. 4xx means the realm answered and judged the credentials;
// everything else means the realm itself is in trouble.
func mapKeycloakGrantError(status int, body []byte) error {
	if status < 400 || status >= 500 {
		return fmt.Errorf("%w: token endpoint returned %d", ErrUnavailable, status)
	}

	var ke keycloakError
	_ = json.Unmarshal(body, &ke)
	desc := strings.ToLower(ke.Description)
	switch {
	case strings.Contains(desc, "temporarily"):
		return ErrAccountLocked
	case strings.Contains(desc, "disabled"):
		return ErrAccountDisabled
	default:
		return ErrInvalidCredentials
	}
}

func (k *Keycloak) findUser(ctx context.Context, query url.Values) (domain.AuthenticatedUser, error) {
	endpoint := fmt.Sprintf("%s/admin/realms/%s/users?%s", k.cfg.BaseURL, k.cfg.Realm, query.Encode())

	resp, err := k.adminDo(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return domain.AuthenticatedUser{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.AuthenticatedUser{}, fmt.Errorf("%w: user lookup returned %d", ErrUnavailable, resp.StatusCode)
	}

	var users []keycloakUser
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return domain.AuthenticatedUser{}, fmt.Errorf("%w: user lookup: %v", ErrUnavailable, err)
	}
	if len(users) == 0 {
		return domain.AuthenticatedUser{}, ErrUserNotFound
	}

	u := users[0]
	roles, err := k.realmRoles(ctx, u.ID)
	if err != nil {
		return domain.AuthenticatedUser{}, err
	}

	return domain.AuthenticatedUser{
		UserID:    u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Groups:    roles,
		Roles:     NormalizeRoles(roles),
		Enabled:   u.Enabled,
	}, nil
}

func (k *Keycloak) realmRoles(ctx context.Context, userID string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/admin/realms/%s/users/%s/role-mappings/realm",
		k.cfg.BaseURL, k.cfg.Realm, url.PathEscape(userID))

	resp, err := k.adminDo(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: role lookup returned %d", ErrUnavailable, resp.StatusCode)
	}

	var mapped []keycloakRole
	if err := json.NewDecoder(resp.Body).Decode(&mapped); err != nil {
		return nil, fmt.Errorf("%w: role lookup: %v", ErrUnavailable, err)
	}

	names := make([]string, 0, len(mapped))
	for _, r := range mapped {
		names = append(names, r.Name)
	}
	return names, nil
}

func (k *Keycloak) adminDo(ctx context.Context, method, endpoint string, body io.Reader, contentType string) (*http.Response, error) {
	token, err := k.adminAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: admin api: %v", ErrUnavailable, err)
	}
	return resp, nil
}

// adminAccessToken returns a cached client_credentials token, refreshing it
// shortly before expiry.
func (k *Keycloak) adminAccessToken(ctx context.Context) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.adminToken != "" && time.Now().Before(k.adminExpiry) {
		return k.adminToken, nil
	}

	tok, err := k.tokenRequest(ctx, url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {k.cfg.AdminClientID},
		"client_secret": {k.cfg.AdminClientSecret},
	})
	if err != nil {
		return "", err
	}

	k.adminToken = tok.AccessToken
	k.adminExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - 30*time.Second)
	return k.adminToken, nil
}

// decodeTokenClaims reads the payload segment of a JWT the realm just
// minted for us. The signature is not checked here; the token arrived
// first-hand from the issuer over the token endpoint.
func decodeTokenClaims(raw string) (keycloakTokenClaims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return keycloakTokenClaims{}, fmt.Errorf("not a JWT")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return keycloakTokenClaims{}, err
	}
	var claims keycloakTokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return keycloakTokenClaims{}, err
	}
	return claims, nil
}
