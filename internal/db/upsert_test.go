package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertSQL(t *testing.T) {
	sql, err := UpsertSQL(UpsertConfig{
		Table:        "batch_outcomes",
		Columns:      []string{"run_id", "batch_id", "status"},
		ConflictKeys: []string{"run_id", "batch_id"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "batch_outcomes" ("run_id", "batch_id", "status") VALUES ($1, $2, $3) ON CONFLICT ("run_id", "batch_id") DO UPDATE SET "status" = EXCLUDED."status"`,
		sql)
}

func TestUpsertSQL_ExplicitUpdateCols(t *testing.T) {
	sql, err := UpsertSQL(UpsertConfig{
		Table:        "ledger.runs",
		Columns:      []string{"id", "status", "updated_at"},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"updated_at"},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, `INSERT INTO "ledger"."runs"`)
	assert.Contains(t, sql, `DO UPDATE SET "updated_at" = EXCLUDED."updated_at"`)
	assert.NotContains(t, sql, `"status" = EXCLUDED`)
}

func TestUpsertSQL_OnlyKeys(t *testing.T) {
	sql, err := UpsertSQL(UpsertConfig{
		Table:        "seen",
		Columns:      []string{"key"},
		ConflictKeys: []string{"key"},
	})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "seen" ("key") VALUES ($1) ON CONFLICT ("key") DO NOTHING`, sql)
}

func TestUpsertSQL_Errors(t *testing.T) {
	_, err := UpsertSQL(UpsertConfig{Table: "t", ConflictKeys: []string{"id"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")

	_, err = UpsertSQL(UpsertConfig{Table: "t", Columns: []string{"id", "name"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"ledger.runs", `"ledger"."runs"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "value"`, quoteAndJoin([]string{"id", "name", "value"}))
}
