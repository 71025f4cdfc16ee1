package query

// Source identifies which connector serves a query.
type Source string

// Known connector sources.
const (
	SourceCSV       Source = "csv"
	SourceSQL       Source = "sql"
	SourceWorldBank Source = "world_bank"
	SourceQatarAPI  Source = "qatar_api"
)

// ValidSources defines the sources the registry accepts at load time.
var ValidSources = map[Source]bool{
	SourceCSV:       true,
	SourceSQL:       true,
	SourceWorldBank: true,
	SourceQatarAPI:  true,
}

// Valid reports whether s names a known connector source.
func (s Source) Valid() bool {
	return ValidSources[s]
}

// UnitUnknown is the expected_unit value that suppresses unit checking.
const UnitUnknown = "unknown"

// TransformStep is one named step of a postprocess pipeline.
// Both the name and the params participate in cache-key identity.
type TransformStep struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// Clone returns a deep copy of the step.
func (t TransformStep) Clone() TransformStep {
	return TransformStep{Name: t.Name, Params: cloneMap(t.Params)}
}

// Spec is a registry-defined query: which source to ask, with which
// parameters, and how to shape the rows afterwards.
//
// Specs loaded by the registry are shared and must not be mutated.
// Callers that need a per-request variant take Clone() first.
type Spec struct {
	ID           string          `json:"id"`
	Title        string          `json:"title,omitempty"`
	Description  string          `json:"description,omitempty"`
	Source       Source          `json:"source"`
	Params       map[string]any  `json:"params,omitempty"`
	Postprocess  []TransformStep `json:"postprocess,omitempty"`
	ExpectedUnit string          `json:"expected_unit,omitempty"`
	Constraints  map[string]any  `json:"constraints,omitempty"`
}

// Clone returns a deep copy of the spec. Params, postprocess steps, and
// constraints are copied recursively so mutating the clone never touches
// the registry's copy.
func (s *Spec) Clone() *Spec {
	if s == nil {
		return nil
	}
	out := &Spec{
		ID:           s.ID,
		Title:        s.Title,
		Description:  s.Description,
		Source:       s.Source,
		ExpectedUnit: s.ExpectedUnit,
		Params:       cloneMap(s.Params),
		Constraints:  cloneMap(s.Constraints),
	}
	if s.Postprocess != nil {
		out.Postprocess = make([]TransformStep, len(s.Postprocess))
		for i, step := range s.Postprocess {
			out.Postprocess[i] = step.Clone()
		}
	}
	return out
}

// Row is one record of a tabular result. Values are the JSON scalar set:
// string, float64/int64, bool, or nil for missing cells.
type Row map[string]any

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// CloneRows deep-copies a row slice.
func CloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

// Provenance records where a result's data came from: the serving source,
// the dataset and its locator, and the field names the connector returned.
// The license field is filled by catalog enrichment, not by connectors.
type Provenance struct {
	Source    Source   `json:"source"`
	DatasetID string   `json:"dataset_id,omitempty"`
	Locator   string   `json:"locator,omitempty"`
	Fields    []string `json:"fields,omitempty"`
	License   string   `json:"license,omitempty"`
}

// Freshness describes how current a result's data is. AsOfDate is whatever
// the source reported (possibly a bare year or the "api"/"auto" sentinel);
// UpdatedAt is the source's own last-modified stamp when it publishes one.
// SLADays and AgeDays are filled by the freshness verifier when a
// freshness_sla_days constraint is present.
type Freshness struct {
	AsOfDate  string `json:"asof_date,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
	SLADays   *int   `json:"sla_days,omitempty"`
	AgeDays   *int   `json:"age_days,omitempty"`
}

// Result is the uniform shape every connector returns and the cache stores.
type Result struct {
	QueryID    string         `json:"query_id"`
	Source     Source         `json:"source"`
	Unit       string         `json:"unit"`
	Rows       []Row          `json:"rows"`
	Provenance Provenance     `json:"provenance"`
	Freshness  Freshness      `json:"freshness"`
	Warnings   []string       `json:"warnings,omitempty"`
	Trace      []string       `json:"trace,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the result.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := &Result{
		QueryID:    r.QueryID,
		Source:     r.Source,
		Unit:       r.Unit,
		Rows:       CloneRows(r.Rows),
		Provenance: r.Provenance,
		Metadata:   cloneMap(r.Metadata),
	}
	if r.Provenance.Fields != nil {
		out.Provenance.Fields = append([]string(nil), r.Provenance.Fields...)
	}
	out.Freshness.AsOfDate = r.Freshness.AsOfDate
	out.Freshness.UpdatedAt = r.Freshness.UpdatedAt
	if r.Freshness.SLADays != nil {
		v := *r.Freshness.SLADays
		out.Freshness.SLADays = &v
	}
	if r.Freshness.AgeDays != nil {
		v := *r.Freshness.AgeDays
		out.Freshness.AgeDays = &v
	}
	if r.Warnings != nil {
		out.Warnings = append([]string(nil), r.Warnings...)
	}
	if r.Trace != nil {
		out.Trace = append([]string(nil), r.Trace...)
	}
	return out
}

// cloneMap deep-copies a params-style map.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue deep-copies the JSON value set plus Set.
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	case Set:
		out := make(Set, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	case Row:
		return any(val.Clone())
	default:
		// Scalars (string, numbers, bool, nil) are immutable.
		return v
	}
}
