package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leakDataUpsert() UpsertConfig {
	return UpsertConfig{
		Table:         "leak_data",
		Columns:       []string{"leak_id", "email", "password", "domain"},
		ConflictKeys:  []string{"leak_id", "email", "password", "domain"},
		IncrementCols: []string{"count_seen"},
		Returning:     []string{"id"},
	}
}

func TestBuildUpsert_Postgres(t *testing.T) {
	sql, err := BuildUpsert(leakDataUpsert(), Postgres)
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "leak_data" ("leak_id", "email", "password", "domain") VALUES ($1, $2, $3, $4) `+
			`ON CONFLICT ("leak_id", "email", "password", "domain") DO UPDATE SET "count_seen" = "leak_data"."count_seen" + 1 RETURNING "id"`,
		sql)
}

func TestBuildUpsert_SQLiteWithUpdateCols(t *testing.T) {
	cfg := leakDataUpsert()
	cfg.UpdateCols = []string{"dg"}
	sql, err := BuildUpsert(cfg, SQLite)
	require.NoError(t, err)
	assert.Contains(t, sql, "VALUES (?, ?, ?, ?)")
	assert.Contains(t, sql, `"dg" = excluded."dg", "count_seen" = "leak_data"."count_seen" + 1`)
}

func TestBuildUpsert_Errors(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*UpsertConfig)
		want string
	}{
		{"no table", func(c *UpsertConfig) { c.Table = "" }, "no table specified"},
		{"no columns", func(c *UpsertConfig) { c.Columns = nil }, "no columns specified"},
		{"no conflict keys", func(c *UpsertConfig) { c.ConflictKeys = nil }, "no conflict keys specified"},
		{"no update", func(c *UpsertConfig) { c.IncrementCols = nil }, "nothing to update"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := leakDataUpsert()
			tt.mut(&cfg)
			_, err := BuildUpsert(cfg, Postgres)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$3, $4", Placeholders(2, 3, Postgres))
	assert.Equal(t, "?, ?, ?", Placeholders(3, 1, SQLite))
	assert.Equal(t, "", Placeholders(0, 1, Postgres))
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"public.leak_data", `"public"."leak_data"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"id", "email", "count_seen"})
	assert.Equal(t, `"id", "email", "count_seen"`, result)
}
