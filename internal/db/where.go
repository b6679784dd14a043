package db

import (
	"fmt"
	"strings"
)

// Where accumulates AND-ed conditions and their arguments. Conditions are
// written with "?" markers, which are numbered for Postgres.
type Where struct {
	d     Dialect
	conds []string
	args  []any
}

// NewWhere creates an empty condition set for the dialect.
func NewWhere(d Dialect) *Where {
	return &Where{d: d}
}

// Add appends a condition with one argument per "?" marker.
func (w *Where) Add(cond string, args ...any) {
	var b strings.Builder
	for _, r := range cond {
		if r == '?' {
			w.args = append(w.args, args[0])
			args = args[1:]
			b.WriteString(w.placeholder())
			continue
		}
		b.WriteRune(r)
	}
	w.conds = append(w.conds, b.String())
}

// Bind appends an argument that is not part of a condition (e.g. a LIMIT)
// and returns its placeholder.
func (w *Where) Bind(arg any) string {
	w.args = append(w.args, arg)
	return w.placeholder()
}

// SQL returns " WHERE ..." or "" when there are no conditions.
func (w *Where) SQL() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// Args returns the accumulated arguments in placeholder order.
func (w *Where) Args() []any {
	return w.args
}

func (w *Where) placeholder() string {
	if w.d == SQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", len(w.args))
}
