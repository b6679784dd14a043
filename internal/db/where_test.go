package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWhere_Postgres(t *testing.T) {
	w := NewWhere(Postgres)
	w.Add("lower(email) = lower(?)", "a@example.com")
	w.Add("(ticket_id = ? OR leak_id IN (SELECT id FROM leak WHERE ticket_id = ?))", "T-1", "T-1")
	limit := w.Bind(50)

	assert.Equal(t, ` WHERE lower(email) = lower($1) AND (ticket_id = $2 OR leak_id IN (SELECT id FROM leak WHERE ticket_id = $3))`, w.SQL())
	assert.Equal(t, "$4", limit)
	assert.Equal(t, []any{"a@example.com", "T-1", "T-1", 50}, w.Args())
}

func TestWhere_SQLite(t *testing.T) {
	w := NewWhere(SQLite)
	w.Add("leak_id = ?", int64(3))
	assert.Equal(t, " WHERE leak_id = ?", w.SQL())
	assert.Equal(t, "?", w.Bind(10))
}

func TestWhere_Empty(t *testing.T) {
	w := NewWhere(Postgres)
	assert.Empty(t, w.SQL())
	assert.Empty(t, w.Args())
	assert.Equal(t, "$1", w.Bind(100))
}
