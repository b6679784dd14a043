// Package directory looks up people in the organizational directory by
// email address.
package directory

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when no directory entry has the email address.
var ErrNotFound = eris.New("directory: entry not found")

// Entry is the subset of a directory record the enrichers use.
type Entry struct {
	Group  string `json:"group"`
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// Active reports whether the account's record status is "A".
func (e *Entry) Active() bool {
	return strings.EqualFold(strings.TrimSpace(e.Status), "A")
}

// Directory resolves an email address to a directory entry.
type Directory interface {
	Lookup(ctx context.Context, email string) (*Entry, error)
}

// Static is an in-memory directory keyed by lowercased email.
type Static map[string]Entry

// Lookup implements Directory.
func (s Static) Lookup(_ context.Context, email string) (*Entry, error) {
	e, ok := s[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

// Unavailable is used when no directory is configured; every lookup fails.
type Unavailable struct{}

// Lookup implements Directory.
func (Unavailable) Lookup(context.Context, string) (*Entry, error) {
	return nil, eris.New("directory: not configured")
}
