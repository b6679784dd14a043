package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Dialect selects the placeholder syntax of generated SQL.
type Dialect int

const (
	// Postgres uses $1, $2, ...
	Postgres Dialect = iota
	// SQLite uses ?.
	SQLite
)

// UpsertConfig defines a single-row INSERT ... ON CONFLICT statement.
type UpsertConfig struct {
	Table         string   // target table (e.g., "leak_data")
	Columns       []string // columns being inserted, in argument order
	ConflictKeys  []string // columns forming the unique constraint
	UpdateCols    []string // columns overwritten with the new value on conflict
	IncrementCols []string // counters bumped by one on conflict
	Returning     []string // columns returned by the statement
}

// BuildUpsert renders cfg for the given dialect. On conflict at least one
// column must change so that RETURNING yields the existing row.
func BuildUpsert(cfg UpsertConfig, d Dialect) (string, error) {
	if cfg.Table == "" {
		return "", eris.New("db: upsert: no table specified")
	}
	if len(cfg.Columns) == 0 {
		return "", eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return "", eris.New("db: upsert: no conflict keys specified")
	}
	if len(cfg.UpdateCols) == 0 && len(cfg.IncrementCols) == 0 {
		return "", eris.New("db: upsert: nothing to update on conflict")
	}

	table := sanitizeTable(cfg.Table)

	var setClauses []string
	for _, col := range cfg.UpdateCols {
		c := pgx.Identifier{col}.Sanitize()
		setClauses = append(setClauses, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	for _, col := range cfg.IncrementCols {
		c := pgx.Identifier{col}.Sanitize()
		setClauses = append(setClauses, fmt.Sprintf("%s = %s.%s + 1", c, table, c))
	}

	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table,
		quoteAndJoin(cfg.Columns),
		Placeholders(len(cfg.Columns), 1, d),
		quoteAndJoin(cfg.ConflictKeys),
		strings.Join(setClauses, ", "),
	)
	if len(cfg.Returning) > 0 {
		sql += " RETURNING " + quoteAndJoin(cfg.Returning)
	}
	return sql, nil
}

// Placeholders returns n comma-separated bind parameters starting at start.
func Placeholders(n, start int, d Dialect) string {
	ph := make([]string, n)
	for i := range ph {
		if d == SQLite {
			ph[i] = "?"
		} else {
			ph[i] = fmt.Sprintf("$%d", start+i)
		}
	}
	return strings.Join(ph, ", ")
}

// sanitizeTable handles schema-qualified table names like "public.leak_data".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
