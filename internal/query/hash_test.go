package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseSpec() *Spec {
	return &Spec{
		ID:     "employment_by_sector",
		Title:  "Employment by sector",
		Source: SourceCSV,
		Params: map[string]any{
			"file":  "employment_by_sector.csv",
			"where": map[string]any{"nationality": "qatari"},
		},
		Postprocess: []TransformStep{
			{Name: "top_n", Params: map[string]any{"sort_key": "employees", "n": 5}},
		},
		ExpectedUnit: "count",
	}
}

func TestSpecDigestStable(t *testing.T) {
	first, err := SpecDigest(baseSpec())
	require.NoError(t, err)
	assert.Len(t, first, 64)

	for i := 0; i < 20; i++ {
		again, err := SpecDigest(baseSpec())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSpecDigestIgnoresDocumentationFields(t *testing.T) {
	a := baseSpec()
	b := baseSpec()
	b.Title = "Different title"
	b.Description = "Some long description"
	b.ExpectedUnit = "percent"
	b.Constraints = map[string]any{"freshness_sla_days": 30}

	da, err := SpecDigest(a)
	require.NoError(t, err)
	db, err := SpecDigest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestSpecDigestCoversIdentityFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Spec)
	}{
		{"id", func(s *Spec) { s.ID = "other" }},
		{"source", func(s *Spec) { s.Source = SourceSQL }},
		{"param value", func(s *Spec) { s.Params["file"] = "other.csv" }},
		{"nested param", func(s *Spec) {
			s.Params["where"].(map[string]any)["nationality"] = "non_qatari"
		}},
		{"step name", func(s *Spec) { s.Postprocess[0].Name = "select" }},
		{"step param", func(s *Spec) { s.Postprocess[0].Params["n"] = 10 }},
		{"extra step", func(s *Spec) {
			s.Postprocess = append(s.Postprocess, TransformStep{Name: "to_percent"})
		}},
	}

	base, err := SpecDigest(baseSpec())
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := baseSpec()
			tt.mutate(s)
			digest, err := SpecDigest(s)
			require.NoError(t, err)
			assert.NotEqual(t, base, digest, "mutating %s must change the digest", tt.name)
		})
	}
}

func TestSpecDigestNilParamsEqualEmpty(t *testing.T) {
	a := &Spec{ID: "q", Source: SourceCSV}
	b := &Spec{ID: "q", Source: SourceCSV, Params: map[string]any{}}

	da, err := SpecDigest(a)
	require.NoError(t, err)
	db, err := SpecDigest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestSpecDigestSetParamOrderInsensitive(t *testing.T) {
	a := baseSpec()
	a.Params["sectors"] = NewSet("Energy", "Finance", "Construction")
	b := baseSpec()
	b.Params["sectors"] = NewSet("Construction", "Energy", "Finance")

	da, err := SpecDigest(a)
	require.NoError(t, err)
	db, err := SpecDigest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestMustSpecDigestPanicsOnUnhashable(t *testing.T) {
	s := baseSpec()
	s.Params["bad"] = make(chan int)
	assert.Panics(t, func() { MustSpecDigest(s) })
}
