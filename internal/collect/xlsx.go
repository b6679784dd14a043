package collect

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXCollector reads the first sheet of a workbook. The first non-blank
// row is the header.
type XLSXCollector struct {
	opts  Options
	nulls nullSet
}

// NewXLSX creates an XLSX collector.
func NewXLSX(opts Options) *XLSXCollector {
	return &XLSXCollector{opts: opts, nulls: newNullSet(opts.NullTokens)}
}

// Collect reads the workbook at path.
func (c *XLSXCollector) Collect(ctx context.Context, path string) (t *Table, err error) {
	if err := checkSize(path, c.opts.MaxBytes); err != nil {
		return nil, err
	}

	// xlsx panics on some malformed archives.
	defer func() {
		if r := recover(); r != nil {
			t, err = nil, eris.Errorf("collect: malformed workbook: %v", r)
		}
	}()

	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "collect: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return newTable(nil, c.nulls), nil
	}

	var records [][]string
	for _, row := range f.Sheets[0].Rows {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "collect: xlsx read cancelled")
		}
		if row == nil {
			continue
		}
		cells := rowToStrings(row)
		if blank(cells) {
			continue
		}
		records = append(records, cells)
	}
	return newTable(records, c.nulls), nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell == nil {
			continue
		}
		cells[j] = cell.String()
	}
	return cells
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

