package enrich

import (
	"context"
	"strings"

	"github.com/sells-group/credleak/internal/model"
)

// Classifier marks addresses outside the internal domains as external.
type Classifier struct {
	suffixes []string
}

// NewClassifier creates a classifier. An address is internal when its
// domain equals one of domains or is a subdomain of one.
func NewClassifier(domains []string) *Classifier {
	c := &Classifier{}
	for _, d := range domains {
		if d = strings.ToLower(strings.Trim(strings.TrimSpace(d), ".")); d != "" {
			c.suffixes = append(c.suffixes, d)
		}
	}
	return c
}

// IsInternal reports whether email belongs to an internal domain.
func (c *Classifier) IsInternal(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))
	for _, s := range c.suffixes {
		if domain == s || strings.HasSuffix(domain, "."+s) {
			return true
		}
	}
	return false
}

// Name implements Enricher.
func (c *Classifier) Name() string { return "classifier" }

// Enrich implements Enricher.
func (c *Classifier) Enrich(_ context.Context, rec *model.Record) error {
	if rec.ExternalUser == nil {
		rec.ExternalUser = model.Flag(!c.IsInternal(rec.Email))
	}
	return nil
}
