// Package filter holds policy checks that may suppress a record before it
// is deduplicated and persisted. A veto is a silent, counted drop and is
// distinct from quarantine.
package filter

import (
	"context"
	"strings"

	"github.com/sells-group/credleak/internal/model"
)

// Verdict is the outcome of a filter.
type Verdict int

const (
	// Pass lets the record continue.
	Pass Verdict = iota
	// Veto drops the record.
	Veto
)

func (v Verdict) String() string {
	if v == Veto {
		return "veto"
	}
	return "pass"
}

// Filter decides whether a record continues. Implementations may adjust
// fields of the record but are never handed quarantined records.
type Filter interface {
	Name() string
	Apply(ctx context.Context, rec *model.Record) Verdict
}

// Passthrough lets every record through unchanged.
type Passthrough struct{}

// Name implements Filter.
func (Passthrough) Name() string { return "passthrough" }

// Apply implements Filter.
func (Passthrough) Apply(context.Context, *model.Record) Verdict { return Pass }

// Chain applies filters in order and stops at the first veto.
type Chain []Filter

// Name implements Filter.
func (c Chain) Name() string {
	names := make([]string, len(c))
	for i, f := range c {
		names[i] = f.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Apply implements Filter.
func (c Chain) Apply(ctx context.Context, rec *model.Record) Verdict {
	for _, f := range c {
		if f.Apply(ctx, rec) == Veto {
			return Veto
		}
	}
	return Pass
}

// DomainBlocklist vetoes records whose email domain equals or falls under
// one of the listed domains, such as test or sinkhole domains.
type DomainBlocklist struct {
	domains []string
}

// NewDomainBlocklist creates a blocklist filter. Matching is case-insensitive.
func NewDomainBlocklist(domains []string) *DomainBlocklist {
	b := &DomainBlocklist{}
	for _, d := range domains {
		if d = strings.ToLower(strings.Trim(strings.TrimSpace(d), ".")); d != "" {
			b.domains = append(b.domains, d)
		}
	}
	return b
}

// Name implements Filter.
func (b *DomainBlocklist) Name() string { return "domain_blocklist" }

// Apply implements Filter.
func (b *DomainBlocklist) Apply(_ context.Context, rec *model.Record) Verdict {
	domain := rec.EmailDomain()
	for _, d := range b.domains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return Veto
		}
	}
	return Pass
}
