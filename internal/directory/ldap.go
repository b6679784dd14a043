package directory

import (
	"context"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rotisserie/eris"

	"github.com/sells-group/credleak/internal/config"
	"github.com/sells-group/credleak/internal/resilience"
)

const (
	attrGroup  = "dg"
	attrStatus = "recordStatus"
)

// ldapConn is the part of *ldap.Conn a lookup needs.
type ldapConn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
}

// LDAP looks entries up with a (mail=...) search. Each lookup opens its
// own connection, so LDAP is safe for concurrent use.
type LDAP struct {
	cfg     config.DirectoryConfig
	timeout time.Duration
	dial    func(ctx context.Context) (ldapConn, func(), error)
}

// NewLDAP creates an LDAP directory from config.
func NewLDAP(cfg config.DirectoryConfig) (*LDAP, error) {
	if cfg.URL == "" {
		return nil, eris.New("directory: url is required")
	}
	if cfg.UserIDAttr == "" {
		cfg.UserIDAttr = "ecMoniker"
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	l := &LDAP{cfg: cfg, timeout: timeout}
	l.dial = l.dialURL
	return l, nil
}

func (l *LDAP) dialURL(ctx context.Context) (ldapConn, func(), error) {
	budget, err := l.budget(ctx)
	if err != nil {
		return nil, nil, err
	}
	dialer := &net.Dialer{Timeout: budget}
	if dl, ok := ctx.Deadline(); ok {
		dialer.Deadline = dl
	}
	conn, err := ldap.DialURL(l.cfg.URL, ldap.DialWithDialer(dialer))
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, eris.Wrap(ctx.Err(), "directory: dial")
		}
		return nil, nil, resilience.NewTransientError(eris.Wrap(err, "directory: dial"), 0)
	}
	if budget, err = l.budget(ctx); err != nil {
		conn.Close() //nolint:errcheck
		return nil, nil, err
	}
	conn.SetTimeout(budget)
	return conn, func() { conn.Close() }, nil //nolint:errcheck
}

// budget is the configured timeout capped at the time left before the
// context deadline.
func (l *LDAP) budget(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, eris.Wrap(err, "directory: dial")
	}
	timeout := l.timeout
	if dl, ok := ctx.Deadline(); ok {
		left := time.Until(dl)
		if left <= 0 {
			return 0, eris.Wrap(context.DeadlineExceeded, "directory: dial")
		}
		if left < timeout {
			timeout = left
		}
	}
	return timeout, nil
}

// Lookup implements Directory.
func (l *LDAP) Lookup(ctx context.Context, email string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, closeFn, err := l.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	if l.cfg.BindDN != "" {
		if err := conn.Bind(l.cfg.BindDN, l.cfg.BindPassword); err != nil {
			return nil, classifyLDAPError(eris.Wrap(err, "directory: bind"), err)
		}
	}

	req := ldap.NewSearchRequest(
		l.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
		1, int(l.timeout.Seconds()), false,
		searchFilter(email),
		[]string{attrGroup, l.cfg.UserIDAttr, attrStatus, "mail"},
		nil,
	)
	res, err := conn.Search(req)
	if err != nil && !ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
		return nil, classifyLDAPError(eris.Wrap(err, "directory: search"), err)
	}
	if res == nil || len(res.Entries) == 0 {
		return nil, ErrNotFound
	}
	return entryFromLDAP(res.Entries[0], l.cfg.UserIDAttr), nil
}

// searchFilter builds the mail filter with the address escaped.
func searchFilter(email string) string {
	return "(mail=" + ldap.EscapeFilter(email) + ")"
}

// entryFromLDAP takes the first value of each multi-valued attribute.
func entryFromLDAP(e *ldap.Entry, userIDAttr string) *Entry {
	return &Entry{
		Group:  e.GetAttributeValue(attrGroup),
		UserID: e.GetAttributeValue(userIDAttr),
		Status: e.GetAttributeValue(attrStatus),
	}
}

// classifyLDAPError marks network and busy errors as transient.
func classifyLDAPError(wrapped, raw error) error {
	if ldap.IsErrorWithCode(raw, ldap.ErrorNetwork) ||
		ldap.IsErrorWithCode(raw, ldap.LDAPResultBusy) ||
		ldap.IsErrorWithCode(raw, ldap.LDAPResultUnavailable) ||
		ldap.IsErrorWithCode(raw, ldap.LDAPResultTimeLimitExceeded) {
		return resilience.NewTransientError(wrapped, 0)
	}
	return wrapped
}
