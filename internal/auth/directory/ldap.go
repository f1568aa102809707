package directory

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/sentinelworks/gatekeeper/internal/auth/domain"
	"github.com/sentinelworks/gatekeeper/pkg/slogx"
)

const defaultDialTimeout = 5 * time.Second

// LDAPConfig wires an OpenLDAP-style directory. Filters are format strings
// where %s receives the (already escaped) search value.
type LDAPConfig struct {
	URL          string
	BindDN       string
	BindPassword string
	BaseDN       string

	UserFilter  string // default "(uid=%s)"
	EmailFilter string // default "(mail=%s)"

	UsernameAttr  string // default "uid"
	EmailAttr     string // default "mail"
	FirstNameAttr string // default "givenName"
	LastNameAttr  string // default "sn"
	GroupAttr     string // default "memberOf"

	DialTimeout time.Duration
}

func (c *LDAPConfig) applyDefaults() {
	if c.UserFilter == "" {
		c.UserFilter = "(uid=%s)"
	}
	if c.EmailFilter == "" {
		c.EmailFilter = "(mail=%s)"
	}
	if c.UsernameAttr == "" {
		c.UsernameAttr = "uid"
	}
	if c.EmailAttr == "" {
		c.EmailAttr = "mail"
	}
	if c.FirstNameAttr == "" {
		c.FirstNameAttr = "givenName"
	}
	if c.LastNameAttr == "" {
		c.LastNameAttr = "sn"
	}
	if c.GroupAttr == "" {
		c.GroupAttr = "memberOf"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
}

// LDAP authenticates by binding as the user after locating their DN with a
// service-account search. It is a bind-only backend and cannot change
// passwords.
type LDAP struct {
	cfg LDAPConfig
}

var _ Service = (*LDAP)(nil)

func NewLDAP(cfg LDAPConfig) *LDAP {
	cfg.applyDefaults()
	return &LDAP{cfg: cfg}
}

func (l *LDAP) Authenticate(ctx context.Context, creds domain.Credentials) (domain.AuthenticatedUser, error) {
	conn, err := l.connect(ctx)
	if err != nil {
		return domain.AuthenticatedUser{}, err
	}
	defer conn.Close()

	entry, err := l.searchOne(conn, fmt.Sprintf(l.cfg.UserFilter, ldap.EscapeFilter(creds.Username)))
	if err != nil {
		return domain.AuthenticatedUser{}, err
	}
	if entry == nil {
		// Same answer as a bad password, so usernames cannot be probed.
		return domain.AuthenticatedUser{}, ErrInvalidCredentials
	}

	if err := conn.Bind(entry.DN, creds.Password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return domain.AuthenticatedUser{}, ErrInvalidCredentials
		}
		return domain.AuthenticatedUser{}, fmt.Errorf("%w: user bind: %v", ErrUnavailable, err)
	}

	return l.entryToUser(entry), nil
}

func (l *LDAP) FindByUsername(ctx context.Context, username string) (domain.AuthenticatedUser, error) {
	return l.find(ctx, fmt.Sprintf(l.cfg.UserFilter, ldap.EscapeFilter(username)))
}

func (l *LDAP) FindByEmail(ctx context.Context, email string) (domain.AuthenticatedUser, error) {
	return l.find(ctx, fmt.Sprintf(l.cfg.EmailFilter, ldap.EscapeFilter(email)))
}

func (l *LDAP) IsAvailable(ctx context.Context) bool {
	conn, err := l.connect(ctx)
	if err != nil {
		slogx.FromContext(ctx).Warn("ldap availability probe failed", "error", err)
		return false
	}
	conn.Close()
	return true
}

func (l *LDAP) find(ctx context.Context, filter string) (domain.AuthenticatedUser, error) {
	conn, err := l.connect(ctx)
	if err != nil {
		return domain.AuthenticatedUser{}, err
	}
	defer conn.Close()

	entry, err := l.searchOne(conn, filter)
	if err != nil {
		return domain.AuthenticatedUser{}, err
	}
	if entry == nil {
		return domain.AuthenticatedUser{}, ErrUserNotFound
	}
	return l.entryToUser(entry), nil
}

// connect dials and binds the service account. Every operation gets a fresh
// connection; pooling is the resilience wrapper's problem, not ours.
func (l *LDAP) connect(ctx context.Context) (*ldap.Conn, error) {
	conn, err := ldap.DialURL(l.cfg.URL, ldap.DialWithDialer(&net.Dialer{Timeout: l.cfg.DialTimeout}))
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %v", ErrUnavailable, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetTimeout(time.Until(deadline))
	}

	if err := conn.Bind(l.cfg.BindDN, l.cfg.BindPassword); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: service bind: %v", ErrUnavailable, err)
	}
	return conn, nil
}

func (l *LDAP) searchOne(conn *ldap.Conn, filter string) (*ldap.Entry, error) {
	req := ldap.NewSearchRequest(
		l.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 2, 0, false,
		filter,
		[]string{
			"entryUUID",
			l.cfg.UsernameAttr,
			l.cfg.EmailAttr,
			l.cfg.FirstNameAttr,
			l.cfg.LastNameAttr,
			l.cfg.GroupAttr,
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

	switch len(res.Entries) {
	case 0:
		return nil, nil
	case 1:
		return res.Entries[0], nil
	default:
		return nil, fmt.Errorf("%w: ambiguous filter %q matched %d entries", ErrUnavailable, filter, len(res.Entries))
	}
}

func (l *LDAP) entryToUser(entry *ldap.Entry) domain.AuthenticatedUser {
	userID := entry.GetAttributeValue("entryUUID")
	if userID == "" {
		userID = entry.DN
	}

	groups := make([]string, 0, len(entry.GetAttributeValues(l.cfg.GroupAttr)))
	for _, dn := range entry.GetAttributeValues(l.cfg.GroupAttr) {
		groups = append(groups, groupCN(dn))
	}

	return domain.AuthenticatedUser{
		UserID:    userID,
		Username:  entry.GetAttributeValue(l.cfg.UsernameAttr),
		Email:     entry.GetAttributeValue(l.cfg.EmailAttr),
		FirstName: entry.GetAttributeValue(l.cfg.FirstNameAttr),
		LastName:  entry.GetAttributeValue(l.cfg.LastNameAttr),
		Groups:    groups,
		Roles:     NormalizeRoles(groups),
		Enabled:   true,
	}
}

// groupCN extracts the leading CN from a group DN, falling back to the raw
// value when it is not a DN at all.
func groupCN(dn string) string {
	parsed, err := ldap.ParseDN(dn)
	if err != nil || len(parsed.RDNs) == 0 || len(parsed.RDNs[0].Attributes) == 0 {
		return dn
	}
	attr := parsed.RDNs[0].Attributes[0]
	if !strings.EqualFold(attr.Type, "cn") {
		return dn
	}
	return attr.Value
}
