package connector

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qnwis/qnwis/internal/query"
)

func seedEmploymentDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE employment (
		sector TEXT,
		year INTEGER,
		employees INTEGER,
		qatarization_pct REAL
	)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO employment VALUES
		('Construction', 2022, 398000, 12.5),
		('Construction', 2023, 412000, 13.1),
		('Finance', 2023, 98000, 29.2)`)
	require.NoError(t, err)
	return db
}

func sqlSpec(params map[string]any) *query.Spec {
	return &query.Spec{
		ID:     "sector_employment",
		Source: query.SourceSQL,
		Params: params,
	}
}

func TestSQLConnector_SelectWithArgs(t *testing.T) {
	c := NewSQL(seedEmploymentDB(t))

	result, err := c.Fetch(context.Background(), sqlSpec(map[string]any{
		"sql":  "SELECT sector, year, employees FROM employment WHERE year = ? ORDER BY sector",
		"args": []any{2023},
	}))
	require.NoError(t, err)

	assert.Equal(t, "sector_employment", result.QueryID)
	assert.Equal(t, query.SourceSQL, result.Source)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "Construction", result.Rows[0]["sector"])
	assert.Equal(t, int64(412000), result.Rows[0]["employees"])
	assert.Equal(t, "Finance", result.Rows[1]["sector"])
	assert.Empty(t, result.Warnings)
}

func TestSQLConnector_EmptyResultWarnsInsteadOfFailing(t *testing.T) {
	c := NewSQL(seedEmploymentDB(t))

	result, err := c.Fetch(context.Background(), sqlSpec(map[string]any{
		"sql":  "SELECT sector FROM employment WHERE year = ?",
		"args": []any{1999},
	}))
	require.NoError(t, err, "database-backed zero matches are not an error")

	assert.Empty(t, result.Rows)
	assert.Equal(t, []string{WarnEmptyResult}, result.Warnings)
}

func TestSQLConnector_RejectsNonSelect(t *testing.T) {
	c := NewSQL(seedEmploymentDB(t))
	ctx := context.Background()

	tests := []struct {
		name string
		text string
	}{
		{name: "delete", text: "DELETE FROM employment"},
		{name: "insert", text: "INSERT INTO employment VALUES ('X', 2024, 1, 1.0)"},
		{name: "pragma", text: "PRAGMA journal_mode = DELETE"},
		{name: "multiple statements", text: "SELECT 1; DROP TABLE employment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Fetch(ctx, sqlSpec(map[string]any{"sql": tt.text}))
			var paramErr *ParamError
			require.ErrorAs(t, err, &paramErr)
			assert.Equal(t, "sql", paramErr.Param)
		})
	}
}

func TestSQLConnector_AllowsCTEAndTrailingSemicolon(t *testing.T) {
	c := NewSQL(seedEmploymentDB(t))
	ctx := context.Background()

	result, err := c.Fetch(ctx, sqlSpec(map[string]any{
		"sql": `WITH latest AS (SELECT * FROM employment WHERE year = 2023)
			SELECT sector, employees FROM latest ORDER BY sector`,
	}))
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)

	result, err = c.Fetch(ctx, sqlSpec(map[string]any{
		"sql": "SELECT sector FROM employment ORDER BY sector;",
	}))
	require.NoError(t, err)
	assert.Len(t, result.Rows, 3)
}

func TestSQLConnector_QueryFailure(t *testing.T) {
	c := NewSQL(seedEmploymentDB(t))

	_, err := c.Fetch(context.Background(), sqlSpec(map[string]any{
		"sql": "SELECT * FROM no_such_table",
	}))

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, query.SourceSQL, unavailable.Source)
}

func TestSQLConnector_UnitAndProvenance(t *testing.T) {
	c := NewSQL(seedEmploymentDB(t))
	ctx := context.Background()

	result, err := c.Fetch(ctx, sqlSpec(map[string]any{
		"sql":     "SELECT sector, qatarization_pct FROM employment WHERE year = 2023",
		"dataset": "employment_quarterly",
	}))
	require.NoError(t, err)
	assert.Equal(t, "percent", result.Unit)
	assert.Equal(t, "employment_quarterly", result.Provenance.DatasetID)
	assert.Equal(t, []string{"sector", "qatarization_pct"}, result.Provenance.Fields)

	result, err = c.Fetch(ctx, sqlSpec(map[string]any{
		"sql":  "SELECT sector, employees FROM employment",
		"unit": "count",
	}))
	require.NoError(t, err)
	assert.Equal(t, "count", result.Unit)
}
