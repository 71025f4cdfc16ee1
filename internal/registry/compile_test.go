package registry

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qnwis/qnwis/internal/query"
)

func compileString(t *testing.T, src string) (*query.Spec, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileBytes([]byte(src), cue.Filename("inline.cue"))
	return compileSpec(v, "inline.cue")
}

func TestCompileSpec_FullDocument(t *testing.T) {
	spec, err := compileString(t, `
		id:          "wage_distribution"
		title:       "Wage distribution by sector"
		description: "Average monthly wages from the establishment census."
		source:      "sql"
		params: {
			sql: "SELECT sector, year, avg_wage FROM wages WHERE year = ?"
			args: [2023]
			dataset: "wages"
			flags: {
				estimate: false
				weight:   0.75
			}
			notes: null
		}
		expected_unit: "qar"
		constraints: freshness_sla_days: 90
		postprocess: [{
			name: "top_n"
			params: {
				sort_key: "avg_wage"
				n:        10
			}
		}]
	`)
	require.NoError(t, err)

	assert.Equal(t, "wage_distribution", spec.ID)
	assert.Equal(t, "Wage distribution by sector", spec.Title)
	assert.Equal(t, query.SourceSQL, spec.Source)
	assert.Equal(t, "qar", spec.ExpectedUnit)

	assert.Equal(t, "SELECT sector, year, avg_wage FROM wages WHERE year = ?", spec.Params["sql"])
	assert.Equal(t, []any{int64(2023)}, spec.Params["args"])
	assert.Equal(t, map[string]any{"estimate": false, "weight": 0.75}, spec.Params["flags"])

	// null decodes to a present key holding nil.
	notes, ok := spec.Params["notes"]
	assert.True(t, ok)
	assert.Nil(t, notes)

	assert.Equal(t, int64(90), spec.Constraints["freshness_sla_days"])

	require.Len(t, spec.Postprocess, 1)
	assert.Equal(t, "top_n", spec.Postprocess[0].Name)
	assert.Equal(t, map[string]any{"sort_key": "avg_wage", "n": int64(10)}, spec.Postprocess[0].Params)
}

func TestCompileSpec_MinimalDocument(t *testing.T) {
	spec, err := compileString(t, `
		id:     "employment_total"
		source: "csv"
	`)
	require.NoError(t, err)

	assert.Equal(t, "employment_total", spec.ID)
	assert.Equal(t, query.SourceCSV, spec.Source)
	assert.Equal(t, query.UnitUnknown, spec.ExpectedUnit)
	assert.Nil(t, spec.Params)
	assert.Nil(t, spec.Postprocess)
	assert.Nil(t, spec.Constraints)
}

func TestCompileSpec_MissingID(t *testing.T) {
	_, err := compileString(t, `source: "csv"`)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "id", ce.Field)
	assert.Contains(t, ce.Message, "required")
}

func TestCompileSpec_EmptyID(t *testing.T) {
	_, err := compileString(t, `
		id:     ""
		source: "csv"
	`)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "id", ce.Field)
	assert.Contains(t, ce.Message, "must not be empty")
}

func TestCompileSpec_MissingSource(t *testing.T) {
	_, err := compileString(t, `id: "employment_total"`)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "source", ce.Field)
}

func TestCompileSpec_UnknownSource(t *testing.T) {
	_, err := compileString(t, `
		id:     "employment_total"
		source: "excel"
	`)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "source", ce.Field)
	assert.Contains(t, ce.Message, `"excel"`)
}

func TestCompileSpec_UnknownUnit(t *testing.T) {
	_, err := compileString(t, `
		id:            "employment_total"
		source:        "csv"
		expected_unit: "furlongs"
	`)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "expected_unit", ce.Field)
	assert.Contains(t, ce.Message, `"furlongs"`)
}

func TestCompileSpec_TitleMustBeString(t *testing.T) {
	_, err := compileString(t, `
		id:     "employment_total"
		title:  42
		source: "csv"
	`)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "title", ce.Field)
	assert.Contains(t, ce.Message, "must be a string")
}

func TestCompileSpec_ParamsMustBeStruct(t *testing.T) {
	_, err := compileString(t, `
		id:     "employment_total"
		source: "csv"
		params: [1, 2]
	`)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "params", ce.Field)
	assert.Contains(t, ce.Message, "must be a struct")
}

func TestCompileSpec_NonConcreteParam(t *testing.T) {
	_, err := compileString(t, `
		id:     "employment_total"
		source: "csv"
		params: file: string
	`)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "params.file", ce.Field)
	assert.Contains(t, ce.Message, "non-concrete")
}

func TestCompileSpec_ConstraintShapes(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{
			name:  "negative sla",
			body:  `constraints: freshness_sla_days: -1`,
			field: "constraints.freshness_sla_days",
		},
		{
			name:  "fractional sla",
			body:  `constraints: freshness_sla_days: 2.5`,
			field: "constraints.freshness_sla_days",
		},
		{
			name:  "string sla",
			body:  `constraints: freshness_sla_days: "soon"`,
			field: "constraints.freshness_sla_days",
		},
		{
			name:  "sum_to_one not bool",
			body:  `constraints: sum_to_one: "yes"`,
			field: "constraints.sum_to_one",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileString(t, `
				id:     "employment_total"
				source: "csv"
				`+tt.body)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileSpec_ZeroSLAIsValid(t *testing.T) {
	spec, err := compileString(t, `
		id:     "employment_total"
		source: "csv"
		constraints: freshness_sla_days: 0
	`)
	require.NoError(t, err)
	assert.Equal(t, int64(0), spec.Constraints["freshness_sla_days"])
}

func TestCompileSpec_UnknownTransform(t *testing.T) {
	_, err := compileString(t, `
		id:     "employment_total"
		source: "csv"
		postprocess: [{name: "yoy", params: {key: "employees"}}, {name: "cumsum"}]
	`)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "postprocess[1]", ce.Field)
	assert.Contains(t, ce.Message, `unknown transform "cumsum"`)
}

func TestCompileSpec_StepMissingName(t *testing.T) {
	_, err := compileString(t, `
		id:     "employment_total"
		source: "csv"
		postprocess: [{params: {key: "employees"}}]
	`)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "postprocess[0]", ce.Field)
	assert.Contains(t, ce.Message, "name is required")
}

func TestCompileSpec_PostprocessMustBeList(t *testing.T) {
	_, err := compileString(t, `
		id:          "employment_total"
		source:      "csv"
		postprocess: "yoy"
	`)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "postprocess", ce.Field)
	assert.Contains(t, ce.Message, "must be a list")
}

func TestCompileSpec_CUEErrorCarriesPosition(t *testing.T) {
	// Unresolved reference is a CUE-level error, not a shape error.
	_, err := compileString(t, `
		id:     "employment_total"
		source: csv
	`)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "cue", ce.Field)
	assert.Contains(t, ce.Error(), "inline.cue")
}
