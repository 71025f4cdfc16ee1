package cli

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_TextOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewQueryCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/specs", "sector_headcount", "--data", "testdata/data", "--catalog", "testdata/catalog.yaml"})

	require.NoError(t, cmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "query: sector_headcount")
	assert.Contains(t, out, "source: csv")
	assert.Contains(t, out, "unit: count")
	assert.Contains(t, out, "dataset: sector_headcount.csv")
	assert.Contains(t, out, "license: ODbL-QA-1.0")
	assert.Contains(t, out, "rows: 2")
	assert.Contains(t, out, "Construction")
	assert.Contains(t, out, "160000")
}

func TestQuery_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewQueryCommand(&RootOptions{Format: "json", TraceID: "test-trace"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/specs", "sector_headcount", "--data", "testdata/data"})

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test-trace", resp.TraceID)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "sector_headcount", data["query_id"])
	assert.Equal(t, "csv", data["source"])
	assert.Equal(t, "count", data["unit"])
	rows := data["rows"].([]interface{})
	require.Len(t, rows, 2)
	first := rows[0].(map[string]interface{})
	assert.Equal(t, "Construction", first["sector"])
	assert.Equal(t, float64(160000), first["employees"])
}

func TestQuery_PostprocessRuns(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewQueryCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/specs", "sector_share", "--data", "testdata/data"})

	require.NoError(t, cmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "trace: share_of_total")
	assert.Contains(t, out, "share_percent")
	assert.Contains(t, out, "80")
}

func TestQuery_UnknownIDIsCommandError(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewQueryCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/specs", "missing", "--data", "testdata/data"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeNotFound)
	assert.Contains(t, buf.String(), `query spec "missing" not found`)
}

func TestQuery_MissingDataFileFails(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewQueryCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/specs", "sector_headcount", "--data", t.TempDir()})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeConnector)
}

func TestQuery_TTLAboveCeilingIsRejected(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewQueryCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/specs", "sector_headcount", "--data", "testdata/data", "--ttl", "48h"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeCache)
	assert.Contains(t, buf.String(), "exceeds ceiling")
}

func TestQuery_SQLiteCacheSurvivesInvocations(t *testing.T) {
	cacheDB := filepath.Join(t.TempDir(), "cache.db")

	runQueryCmd := func() {
		buf := &bytes.Buffer{}
		cmd := NewQueryCommand(&RootOptions{Format: "text"})
		cmd.SetOut(buf)
		cmd.SetArgs([]string{"testdata/specs", "sector_headcount",
			"--data", "testdata/data", "--cache", "sqlite", "--cache-db", cacheDB})
		require.NoError(t, cmd.Execute())
		assert.Contains(t, buf.String(), "rows: 2")
	}
	runQueryCmd()
	runQueryCmd()

	// A later invocation sees the stored entry and can drop it.
	buf := &bytes.Buffer{}
	cmd := NewInvalidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/specs", "sector_headcount", "--cache", "sqlite", "--cache-db", cacheDB})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "✓ dropped 1 cache entry for sector_headcount\n", buf.String())
}

func seedSourceDB(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "labour.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE employment (sector TEXT, year INTEGER, employees INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO employment VALUES ('Construction', 2023, 160000), ('Finance', 2023, 40000)`)
	require.NoError(t, err)

	return path
}

func TestQuery_SQLSource(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewQueryCommand(&RootOptions{Format: "json", TraceID: "test-trace"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/sql", "employment_sql", "--db", seedSourceDB(t)})

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "sql", data["source"])
	prov := data["provenance"].(map[string]interface{})
	assert.Equal(t, "labour_force_survey", prov["dataset_id"])
	rows := data["rows"].([]interface{})
	require.Len(t, rows, 2)
}

func TestQuery_SQLSourceWithoutDBFails(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewQueryCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/sql", "employment_sql"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestQuery_MissingSourceDBIsCommandError(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewQueryCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/sql", "employment_sql", "--db", filepath.Join(t.TempDir(), "absent.db")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeNotFound)
}
