// Package collect reads raw leak dumps (CSV or XLSX) into an in-memory table
// of string cells, mapping sentinel tokens such as "-" or "NA" to null.
package collect

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Cell is one value of a row. Null is set when the raw text was empty or
// one of the configured sentinel tokens.
type Cell struct {
	Value string
	Null  bool
}

// Row is one data row. Num is 1-based and does not count the header.
type Row struct {
	Num   int
	Raw   []string
	Cells []Cell
}

// Table holds a header and its data rows, as read.
type Table struct {
	Header []string
	Rows   []Row

	index map[string]int
}

// Collector reads a file into a Table. A nil error means the file was
// read successfully; any error describes why the whole file is unusable.
type Collector interface {
	Collect(ctx context.Context, path string) (*Table, error)
}

// Options configures how collectors read files.
type Options struct {
	NullTokens []string
	MaxBytes   int64
	Charset    string
}

// ForPath picks a collector by file extension.
func ForPath(path string, opts Options) (Collector, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt", ".tsv", "":
		return NewCSV(opts), nil
	case ".xlsx":
		return NewXLSX(opts), nil
	default:
		return nil, eris.Errorf("collect: unsupported file type %q", filepath.Ext(path))
	}
}

// Column returns the index of the named column, matched case-insensitively,
// or -1 when the header has no such column.
func (t *Table) Column(name string) int {
	if i, ok := t.index[strings.ToLower(strings.TrimSpace(name))]; ok {
		return i
	}
	return -1
}

// Get returns the named cell of row. Missing columns and short rows read
// as null.
func (t *Table) Get(row Row, name string) Cell {
	i := t.Column(name)
	if i < 0 || i >= len(row.Cells) {
		return Cell{Null: true}
	}
	return row.Cells[i]
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

type nullSet map[string]struct{}

func newNullSet(tokens []string) nullSet {
	s := make(nullSet, len(tokens)+1)
	s[""] = struct{}{}
	for _, tok := range tokens {
		s[tok] = struct{}{}
	}
	return s
}

func (s nullSet) cell(raw string) Cell {
	v := strings.TrimSpace(raw)
	if _, ok := s[v]; ok {
		return Cell{Null: true}
	}
	return Cell{Value: v}
}

// newTable builds a table from parsed records where the first record is the
// header. An empty input gives an empty table.
func newTable(records [][]string, nulls nullSet) *Table {
	t := &Table{index: make(map[string]int)}
	if len(records) == 0 {
		return t
	}

	t.Header = make([]string, len(records[0]))
	for i, h := range records[0] {
		h = strings.TrimSpace(h)
		t.Header[i] = h
		key := strings.ToLower(h)
		if _, dup := t.index[key]; !dup && key != "" {
			t.index[key] = i
		}
	}

	t.Rows = make([]Row, 0, len(records)-1)
	for n, rec := range records[1:] {
		cells := make([]Cell, len(rec))
		for i, v := range rec {
			cells[i] = nulls.cell(v)
		}
		t.Rows = append(t.Rows, Row{Num: n + 1, Raw: rec, Cells: cells})
	}
	return t
}

func checkSize(path string, limit int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return eris.Wrap(err, "collect: stat file")
	}
	if info.IsDir() {
		return eris.Errorf("collect: %s is a directory", path)
	}
	if limit > 0 && info.Size() > limit {
		return eris.Errorf("collect: file is %d bytes, limit is %d", info.Size(), limit)
	}
	return nil
}
