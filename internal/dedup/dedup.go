// Package dedup decides whether an incoming record is already stored.
package dedup

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/credleak/internal/model"
	"github.com/sells-group/credleak/internal/resilience"
)

// Decision is the outcome of a duplicate check.
type Decision int

const (
	// Unique means the record should continue to enrichment and the sink.
	Unique Decision = iota
	// Duplicate means the record is already stored.
	Duplicate
)

func (d Decision) String() string {
	if d == Duplicate {
		return "duplicate"
	}
	return "unique"
}

// Scope selects which fields identify a duplicate.
type Scope string

const (
	// ScopeKey matches (leak_id, email, password, domain) and counts the
	// re-occurrence on the stored row.
	ScopeKey Scope = "key"
	// ScopeCredential matches (email, password) across all leaks.
	ScopeCredential Scope = "credential"
)

// Deduplicator checks records against storage. Errors are transient.
type Deduplicator interface {
	Check(ctx context.Context, rec *model.Record) (Decision, error)
}

// Lookup is the storage the store-backed deduplicator reads.
type Lookup interface {
	IncrementSeen(ctx context.Context, rec *model.Record) (int64, bool, error)
	CredentialExists(ctx context.Context, email, password string) (bool, error)
}

// StoreDeduplicator checks duplicates with a read against the store
// before the record is written.
type StoreDeduplicator struct {
	lookup Lookup
	scope  Scope
}

// New creates a store-backed deduplicator for the scope.
func New(lookup Lookup, scope Scope) (*StoreDeduplicator, error) {
	switch scope {
	case ScopeKey, ScopeCredential:
	case "":
		scope = ScopeKey
	default:
		return nil, eris.Errorf("dedup: unknown scope %q", scope)
	}
	return &StoreDeduplicator{lookup: lookup, scope: scope}, nil
}

// Scope returns the configured scope.
func (d *StoreDeduplicator) Scope() Scope { return d.scope }

// Check implements Deduplicator.
func (d *StoreDeduplicator) Check(ctx context.Context, rec *model.Record) (Decision, error) {
	var (
		found bool
		err   error
	)
	switch d.scope {
	case ScopeCredential:
		found, err = d.lookup.CredentialExists(ctx, rec.Email, rec.Password)
	default:
		if rec.LeakID == nil {
			return Unique, nil
		}
		_, found, err = d.lookup.IncrementSeen(ctx, rec)
	}
	if err != nil {
		return Unique, resilience.NewTransientError(eris.Wrap(err, "dedup: check"), 0)
	}
	if found {
		return Duplicate, nil
	}
	return Unique, nil
}
