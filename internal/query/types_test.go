package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecCloneIsDeep(t *testing.T) {
	original := baseSpec()
	clone := original.Clone()

	clone.ID = "mutated"
	clone.Params["file"] = "other.csv"
	clone.Params["where"].(map[string]any)["nationality"] = "non_qatari"
	clone.Postprocess[0].Params["n"] = 99
	clone.Postprocess = append(clone.Postprocess, TransformStep{Name: "select"})

	assert.Equal(t, "employment_by_sector", original.ID)
	assert.Equal(t, "employment_by_sector.csv", original.Params["file"])
	assert.Equal(t, "qatari", original.Params["where"].(map[string]any)["nationality"])
	assert.Equal(t, 5, original.Postprocess[0].Params["n"])
	assert.Len(t, original.Postprocess, 1)
}

func TestSpecCloneNil(t *testing.T) {
	var s *Spec
	assert.Nil(t, s.Clone())
}

func TestSpecClonePreservesDigest(t *testing.T) {
	original := baseSpec()
	clone := original.Clone()

	do, err := SpecDigest(original)
	require.NoError(t, err)
	dc, err := SpecDigest(clone)
	require.NoError(t, err)
	assert.Equal(t, do, dc)
}

func TestResultCloneIsDeep(t *testing.T) {
	sla := 30
	original := &Result{
		QueryID: "q",
		Source:  SourceCSV,
		Unit:    "count",
		Rows: []Row{
			{"sector": "Energy", "employees": int64(1200)},
		},
		Provenance: Provenance{Source: SourceCSV, DatasetID: "x.csv", Fields: []string{"sector", "employees"}},
		Freshness:  Freshness{AsOfDate: "2024-01-31", UpdatedAt: "2024-02-01", SLADays: &sla},
		Warnings:   []string{"empty_result"},
		Trace:      []string{"top_n"},
		Metadata:   map[string]any{"rows_scanned": int64(10)},
	}

	clone := original.Clone()
	clone.Rows[0]["sector"] = "Finance"
	clone.Provenance.Fields[0] = "changed"
	clone.Warnings[0] = "changed"
	clone.Trace[0] = "changed"
	*clone.Freshness.SLADays = 99
	clone.Metadata["rows_scanned"] = int64(0)

	assert.Equal(t, "Energy", original.Rows[0]["sector"])
	assert.Equal(t, []string{"sector", "employees"}, original.Provenance.Fields)
	assert.Equal(t, "empty_result", original.Warnings[0])
	assert.Equal(t, "top_n", original.Trace[0])
	assert.Equal(t, 30, *original.Freshness.SLADays)
	assert.Equal(t, "2024-02-01", clone.Freshness.UpdatedAt)
	assert.Equal(t, int64(10), original.Metadata["rows_scanned"])
}

func TestSourceValid(t *testing.T) {
	assert.True(t, SourceCSV.Valid())
	assert.True(t, SourceSQL.Valid())
	assert.True(t, SourceWorldBank.Valid())
	assert.True(t, SourceQatarAPI.Valid())
	assert.False(t, Source("excel").Valid())
	assert.False(t, Source("").Valid())
}

func TestCloneRowsNil(t *testing.T) {
	assert.Nil(t, CloneRows(nil))
}
