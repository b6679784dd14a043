// Package enrich adds organizational context to normalized records. Each
// enricher only fills fields that are still unset, so values supplied by
// the source file are never overwritten.
package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/credleak/internal/model"
)

// Enricher fills in one aspect of a record.
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, rec *model.Record) error
}

// Chain runs enrichers in order. The first error stops the chain.
type Chain struct {
	enrichers []Enricher
	timeout   time.Duration
}

// NewChain creates a chain that gives each record at most timeout to pass
// through every enricher. A zero timeout means no deadline.
func NewChain(timeout time.Duration, enrichers ...Enricher) *Chain {
	return &Chain{enrichers: enrichers, timeout: timeout}
}

// Names lists the enrichers in run order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.enrichers))
	for i, e := range c.enrichers {
		names[i] = e.Name()
	}
	return names
}

// Enrich runs the chain over rec.
func (c *Chain) Enrich(ctx context.Context, rec *model.Record) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	for _, e := range c.enrichers {
		if err := ctx.Err(); err != nil {
			return eris.Wrapf(err, "enrich: %s", e.Name())
		}
		if err := e.Enrich(ctx, rec); err != nil {
			return eris.Wrapf(err, "enrich: %s", e.Name())
		}
	}
	return nil
}

// CredentialType defaults the credential type to EU Login.
type CredentialType struct{}

// Name implements Enricher.
func (CredentialType) Name() string { return "credential_type" }

// Enrich implements Enricher.
func (CredentialType) Enrich(_ context.Context, rec *model.Record) error {
	if len(rec.CredentialType) == 0 {
		rec.CredentialType = []model.CredentialType{model.CredentialEULogin}
	}
	return nil
}
