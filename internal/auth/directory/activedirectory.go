package directory

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/sentinelworks/gatekeeper/internal/auth/domain"
	"github.com/sentinelworks/gatekeeper/pkg/slogx"
)

// userAccountControl flag for a disabled account.
const adAccountDisabled = 0x0002

// ActiveDirectoryConfig wires an AD forest. Users bind with their UPN
// (user@domain); the service account is only needed for lookups.
type ActiveDirectoryConfig struct {
	URL          string
	Domain       string
	BindDN       string
	BindPassword string
	BaseDN       string
	DialTimeout  time.Duration
}

type ActiveDirectory struct {
	cfg ActiveDirectoryConfig
}

var _ Service = (*ActiveDirectory)(nil)

func NewActiveDirectory(cfg ActiveDirectoryConfig) *ActiveDirectory {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	return &ActiveDirectory{cfg: cfg}
}

func (a *ActiveDirectory) Authenticate(ctx context.Context, creds domain.Credentials) (domain.AuthenticatedUser, error) {
	conn, err := a.dial(ctx)
	if err != nil {
		return domain.AuthenticatedUser{}, err
	}
	defer conn.Close()

	if err := conn.Bind(a.upn(creds.Username), creds.Password); err != nil {
		return domain.AuthenticatedUser{}, mapADBindError(err)
	}

	// The user's own bind is enough to read their entry.
	entry, err := a.searchOne(conn, samFilter(creds.Username))
	if err != nil {
		return domain.AuthenticatedUser{}, err
	}
	if entry == nil {
		return domain.AuthenticatedUser{}, ErrInvalidCredentials
	}

	user := a.entryToUser(entry)
	if !user.Enabled {
		return domain.AuthenticatedUser{}, ErrAccountDisabled
	}
	return user, nil
}

func (a *ActiveDirectory) FindByUsername(ctx context.Context, username string) (domain.AuthenticatedUser, error) {
	return a.find(ctx, samFilter(username))
}

func (a *ActiveDirectory) FindByEmail(ctx context.Context, email string) (domain.AuthenticatedUser, error) {
	return a.find(ctx, fmt.Sprintf("(&(objectClass=user)(mail=%s))", ldap.EscapeFilter(email)))
}

func (a *ActiveDirectory) IsAvailable(ctx context.Context) bool {
	conn, err := a.connectService(ctx)
	if err != nil {
		slogx.FromContext(ctx).Warn("active directory availability probe failed", "error", err)
		return false
	}
	conn.Close()
	return true
}

func (a *ActiveDirectory) find(ctx context.Context, filter string) (domain.AuthenticatedUser, error) {
	conn, err := a.connectService(ctx)
	if err != nil {
		return domain.AuthenticatedUser{}, err
	}
	defer conn.Close()

	entry, err := a.searchOne(conn, filter)
	if err != nil {
		return domain.AuthenticatedUser{}, err
	}
	if entry == nil {
		return domain.AuthenticatedUser{}, ErrUserNotFound
	}
	return a.entryToUser(entry), nil
}

func (a *ActiveDirectory) upn(username string) string {
	if strings.Contains(username, "@") {
		return username
	}
	return username + "@" + a.cfg.Domain
}

func (a *ActiveDirectory) dial(ctx context.Context) (*ldap.Conn, error) {
	conn, err := ldap.DialURL(a.cfg.URL, ldap.DialWithDialer(&net.Dialer{Timeout: a.cfg.DialTimeout}))
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %v", ErrUnavailable, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetTimeout(time.Until(deadline))
	}
	return conn, nil
}

func (a *ActiveDirectory) connectService(ctx context.Context) (*ldap.Conn, error) {
	conn, err := a.dial(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.Bind(a.cfg.BindDN, a.cfg.BindPassword); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: service bind: %v", ErrUnavailable, err)
	}
	return conn, nil
}

func (a *ActiveDirectory) searchOne(conn *ldap.Conn, filter string) (*ldap.Entry, error) {
	req := ldap.NewSearchRequest(
		a.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 2, 0, false,
		filter,
		[]string{
			"objectGUID",
			"sAMAccountName",
			"mail",
			"givenName",
			"sn",
			"memberOf",
			"userAccountControl",
		},
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: search: %v", ErrUnavailable, err)
	}
	if len(res.Entries) == 0 {
		return nil, nil
	}
	return res.Entries[0], nil
}

func (a *ActiveDirectory) entryToUser(entry *ldap.Entry) domain.AuthenticatedUser {
	userID := decodeObjectGUID(entry.GetRawAttributeValue("objectGUID"))
	if userID == "" {
		userID = entry.DN
	}

	groups := make([]string, 0, len(entry.GetAttributeValues("memberOf")))
	for _, dn := range entry.GetAttributeValues("memberOf") {
		groups = append(groups, groupCN(dn))
	}

	enabled := true
	if uac, err := strconv.ParseInt(entry.GetAttributeValue("userAccountControl"), 10, 64); err == nil {
		enabled = uac&adAccountDisabled == 0
	}

	return domain.AuthenticatedUser{
		UserID:    userID,
		Username:  entry.GetAttributeValue("sAMAccountName"),
		Email:     entry.GetAttributeValue("mail"),
		FirstName: entry.GetAttributeValue("givenName"),
		LastName:  entry.GetAttributeValue("sn"),
		Groups:    groups,
		Roles:     NormalizeRoles(groups),
		Enabled:   enabled,
	}
}

func samFilter(username string) string {
	return fmt.Sprintf("(&(objectClass=user)(sAMAccountName=%s))", ldap.EscapeFilter(username))
}

// mapADBindError translates AD's sub-error inside an invalid-credentials
// response. The code follows "data " in the diagnostic message:
// 52e bad password, 533 account disabled, 775 account locked out.
func mapADBindError(err error) error {
	if !ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
		return fmt.Errorf("%w: bind: %v", ErrUnavailable, err)
	}

	switch adDataCode(err.Error()) {
	case "533", "701":
		return ErrAccountDisabled
	case "775":
		return ErrAccountLocked
	default:
		return ErrInvalidCredentials
	}
}

func adDataCode(msg string) string {
	_, rest, ok := strings.Cut(msg, "data ")
	if !ok {
		return ""
	}
	code, _, _ := strings.Cut(rest, ",")
	return strings.TrimSpace(code)
}

// decodeObjectGUID renders AD's mixed-endian GUID bytes in the canonical
// text form.
func decodeObjectGUID(raw []byte) string {
	if len(raw) != 16 {
		return ""
	}
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		binary.LittleEndian.Uint32(raw[0:4]),
		binary.LittleEndian.Uint16(raw[4:6]),
		binary.LittleEndian.Uint16(raw[6:8]),
		binary.BigEndian.Uint16(raw[8:10]),
		raw[10:16],
	)
}
