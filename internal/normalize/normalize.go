// Package normalize maps collected tables onto canonical records. Every
// normalizer emits exactly one record per input row; rows that fail the
// source schema come back quarantined rather than dropped.
package normalize

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/credleak/internal/collect"
	"github.com/sells-group/credleak/internal/model"
	"github.com/sells-group/credleak/internal/validate"
)

// Normalizer converts one source format into canonical records.
type Normalizer interface {
	// Name is the source key used by the import commands and API.
	Name() string

	// Normalize returns one record per row of t, in row order.
	Normalize(t *collect.Table) []*model.Record
}

// Registry maps source names to normalizers.
type Registry struct {
	normalizers map[string]Normalizer
}

// NewRegistry creates a registry holding every built-in source format.
func NewRegistry(v *validate.Validator) *Registry {
	r := &Registry{normalizers: make(map[string]Normalizer)}
	r.Register(NewSpyCloud(v))
	r.Register(NewIDF(v))
	return r
}

// Register adds or replaces a normalizer.
func (r *Registry) Register(n Normalizer) {
	r.normalizers[strings.ToLower(n.Name())] = n
}

// Get returns the normalizer for a source name.
func (r *Registry) Get(name string) (Normalizer, error) {
	n, ok := r.normalizers[strings.ToLower(name)]
	if !ok {
		return nil, eris.Errorf("normalize: unknown source %q (known: %s)", name, strings.Join(r.Names(), ", "))
	}
	return n, nil
}

// Names lists registered sources in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.normalizers))
	for name := range r.normalizers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// quarantined builds the record emitted for a row that cannot be mapped.
func quarantined(row collect.Row, msg string) *model.Record {
	rec := model.NewRecord(row.Num)
	rec.OriginalLine = originalLine(row.Raw)
	rec.Quarantine(msg)
	return rec
}

// originalLine re-encodes the raw fields of a row as one CSV line.
func originalLine(raw []string) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(raw)
	w.Flush()
	return strings.TrimRight(buf.String(), "\r\n")
}

// fieldCountError reports rows wider than the header.
func fieldCountError(t *collect.Table, row collect.Row) string {
	if len(row.Raw) > len(t.Header) {
		return fmt.Sprintf("row has %d fields, header has %d", len(row.Raw), len(t.Header))
	}
	return ""
}

// value returns the cell text, or "" for null cells.
func value(t *collect.Table, row collect.Row, column string) string {
	c := t.Get(row, column)
	if c.Null {
		return ""
	}
	return c.Value
}
