package enrich

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/credleak/internal/model"
)

// VIP flags addresses found on the VIP list.
type VIP struct {
	emails map[string]struct{}
}

// NewVIP builds a VIP enricher from a list of addresses.
func NewVIP(emails []string) *VIP {
	v := &VIP{emails: make(map[string]struct{}, len(emails))}
	for _, e := range emails {
		if e = normalizeEmail(e); e != "" {
			v.emails[e] = struct{}{}
		}
	}
	return v
}

// LoadVIP reads the list at path. A list that cannot be read is logged and
// replaced by an empty one, so ingestion carries on without VIP flags.
func LoadVIP(path string) *VIP {
	f, err := os.Open(path)
	if err != nil {
		zap.L().Warn("enrich: could not load VIP list, using an empty list",
			zap.String("path", path), zap.Error(err))
		return NewVIP(nil)
	}
	defer f.Close() //nolint:errcheck

	emails, err := readVIPList(f)
	if err != nil {
		zap.L().Warn("enrich: could not read VIP list, using an empty list",
			zap.String("path", path), zap.Error(err))
		return NewVIP(nil)
	}
	zap.L().Info("enrich: loaded VIP list", zap.String("path", path), zap.Int("count", len(emails)))
	return NewVIP(emails)
}

// readVIPList returns one address per line, skipping blanks and # comments.
func readVIPList(r io.Reader) ([]string, error) {
	var emails []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		emails = append(emails, line)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "enrich: read vip list")
	}
	return emails, nil
}

// Len returns the number of listed addresses.
func (v *VIP) Len() int { return len(v.emails) }

// IsVIP reports whether email is on the list. Matching ignores case.
func (v *VIP) IsVIP(email string) bool {
	_, ok := v.emails[normalizeEmail(email)]
	return ok
}

// Name implements Enricher.
func (v *VIP) Name() string { return "vip" }

// Enrich implements Enricher.
func (v *VIP) Enrich(_ context.Context, rec *model.Record) error {
	if rec.IsVIP == nil {
		rec.IsVIP = model.Flag(v.IsVIP(rec.Email))
	}
	return nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
