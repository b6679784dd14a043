package collect

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

const sniffBytes = 1024

// sniffCandidates are the delimiters the sniffer considers, in preference order.
var sniffCandidates = []rune{',', ';', '\t', '|', ':'}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Dialect describes how a CSV file is delimited.
type Dialect struct {
	Delimiter  rune
	LazyQuotes bool
}

// DefaultDialect is used when sniffing finds nothing conclusive.
var DefaultDialect = Dialect{Delimiter: ','}

// CSVCollector reads delimiter-sniffed CSV files.
type CSVCollector struct {
	opts  Options
	nulls nullSet
}

// NewCSV creates a CSV collector.
func NewCSV(opts Options) *CSVCollector {
	return &CSVCollector{opts: opts, nulls: newNullSet(opts.NullTokens)}
}

// Collect reads the whole file at path. An empty or header-only file gives
// a table with no rows and no error.
func (c *CSVCollector) Collect(ctx context.Context, path string) (*Table, error) {
	if err := checkSize(path, c.opts.MaxBytes); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "collect: read file")
	}

	text, err := decode(raw, c.opts.Charset)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return newTable(nil, c.nulls), nil
	}

	dialect := Sniff(text)
	records, err := parseCSV(ctx, text, dialect)
	if err != nil && isQuoteError(err) {
		zap.L().Debug("collect: strict parse failed, retrying with lazy quotes",
			zap.String("path", path),
			zap.Error(err),
		)
		dialect.LazyQuotes = true
		records, err = parseCSV(ctx, text, dialect)
	}
	if err != nil {
		return nil, eris.Wrap(err, "collect: parse csv")
	}

	t := newTable(records, c.nulls)
	zap.L().Debug("collect: csv read",
		zap.String("path", path),
		zap.String("delimiter", string(dialect.Delimiter)),
		zap.Bool("lazy_quotes", dialect.LazyQuotes),
		zap.Int("rows", t.Len()),
	)
	return t, nil
}

func parseCSV(ctx context.Context, text string, d Dialect) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = d.Delimiter
	r.LazyQuotes = d.LazyQuotes
	r.FieldsPerRecord = -1 // ragged rows are judged by the normalizer

	var records [][]string
	for n := 0; ; n++ {
		if n%1000 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rec, err := r.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

func isQuoteError(err error) bool {
	return errors.Is(err, csv.ErrQuote) || errors.Is(err, csv.ErrBareQuote)
}

// decode strips a UTF-8 BOM and converts the bytes to UTF-8. A named charset
// wins; otherwise invalid UTF-8 is read as Windows-1252, the usual encoding
// of spreadsheet exports.
func decode(raw []byte, charset string) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	if charset != "" {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return "", eris.Wrapf(err, "collect: unknown charset %q", charset)
		}
		out, err := enc.NewDecoder().Bytes(raw)
		if err != nil {
			return "", eris.Wrapf(err, "collect: decode %s", charset)
		}
		return string(out), nil
	}

	if utf8.Valid(raw) {
		return string(raw), nil
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return "", eris.Wrap(err, "collect: decode windows-1252")
	}
	return string(out), nil
}

// Sniff guesses the delimiter from the first kilobyte of text. The winning
// candidate appears in the header and occurs the same number of times on
// the most sample lines. Quoted sections are ignored while counting.
func Sniff(text string) Dialect {
	sample := text
	truncated := false
	if len(sample) > sniffBytes {
		sample = sample[:sniffBytes]
		truncated = true
	}

	lines := strings.Split(strings.ReplaceAll(sample, "\r\n", "\n"), "\n")
	if truncated && len(lines) > 1 {
		lines = lines[:len(lines)-1]
	}
	var kept []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		return DefaultDialect
	}

	best := DefaultDialect
	bestScore, bestWidth := 0, 0
	for _, cand := range sniffCandidates {
		width := countOutsideQuotes(kept[0], cand)
		if width == 0 {
			continue
		}
		score := 0
		for _, l := range kept {
			if countOutsideQuotes(l, cand) == width {
				score++
			}
		}
		if score > bestScore || (score == bestScore && width > bestWidth) {
			best = Dialect{Delimiter: cand}
			bestScore, bestWidth = score, width
		}
	}
	return best
}

func countOutsideQuotes(line string, delim rune) int {
	n := 0
	inQuote := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == delim && !inQuote:
			n++
		}
	}
	return n
}
