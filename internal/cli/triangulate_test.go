package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriangulate_TextCleanBattery(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTriangulateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/battery/specs",
		"--data", "testdata/battery/data", "--catalog", "testdata/battery/catalog.yaml"})

	require.NoError(t, cmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "run: ")
	assert.Contains(t, out, "generated: ")
	assert.Contains(t, out, "licenses: NPC-Open-1.0, ODbL-QA-1.0")
	assert.Contains(t, out, "✓ gender_split_sum")
	assert.Contains(t, out, "✓ qatarization_consistency")
	assert.Contains(t, out, "✓ percent_bounds")
	assert.Contains(t, out, "✓ yoy_bounds")
	assert.Contains(t, out, "✓ ewi_vs_growth")
	assert.NotContains(t, out, "warning:")
	assert.NotContains(t, out, "✗")
}

func TestTriangulate_JSONBundle(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTriangulateCommand(&RootOptions{Format: "json", TraceID: "test-trace"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/battery/specs",
		"--data", "testdata/battery/data", "--catalog", "testdata/battery/catalog.yaml"})

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test-trace", resp.TraceID)

	data := resp.Data.(map[string]interface{})
	assert.NotEmpty(t, data["run_id"])
	results := data["results"].([]interface{})
	require.Len(t, results, 5)
	first := results[0].(map[string]interface{})
	assert.Equal(t, "gender_split_sum", first["check_id"])
	assert.Nil(t, first["issues"])
	assert.NotEmpty(t, first["samples"])
}

func TestTriangulate_MissingSpecsAreSkipped(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTriangulateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	// The plain fixture registry has none of the battery's query ids.
	cmd.SetArgs([]string{"testdata/specs", "--data", "testdata/data"})

	require.NoError(t, cmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "warning: check_skipped:gender_split_sum:spec_not_found")
	assert.Contains(t, out, "warning: check_skipped:ewi_vs_growth:spec_not_found")
	assert.NotContains(t, out, "✓")
}

func TestTriangulate_FindingsDoNotChangeExitCode(t *testing.T) {
	specs := filepath.Join(t.TempDir(), "specs")
	data := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(specs, 0o755))
	require.NoError(t, os.MkdirAll(data, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(specs, "employment_by_gender_year.cue"),
		[]byte("id:     \"employment_by_gender_year\"\nsource: \"csv\"\nparams: file: \"employment_by_gender.csv\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(data, "employment_by_gender.csv"),
		[]byte("year,male,female,total\n2023,1500000,350000,1850500\n"), 0o644))

	buf := &bytes.Buffer{}
	cmd := NewTriangulateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{specs, "--data", data})

	// Issues are findings, not failures.
	require.NoError(t, cmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "✗ gender_split_sum: 1 issue(s)")
	assert.Contains(t, out, "male+female=1850000 but total=1850500")
	assert.Contains(t, out, "warning: check_skipped:qatarization_consistency:spec_not_found")
}
