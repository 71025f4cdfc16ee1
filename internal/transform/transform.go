// Package transform implements the postprocess pipeline applied to
// connector rows before caching.
//
// Steps are pure: input rows are never mutated. Each step validates its own
// params and fails the whole pipeline on the first error. The executed step
// names are returned as a trace in execution order; together with the step
// params they are part of the spec's cache identity, so two specs with
// different pipelines can never collide in the cache.
package transform

import (
	"sort"

	"github.com/qnwis/qnwis/internal/query"
)

// Func is a single transform step: rows in, rows out, no mutation of input.
type Func func(rows []query.Row, params map[string]any) ([]query.Row, error)

var registry = map[string]Func{
	"filter_equals":  filterEquals,
	"top_n":          topN,
	"yoy":            yoy,
	"rolling_avg":    rollingAvg,
	"share_of_total": shareOfTotal,
	"rename_columns": renameColumns,
	"select":         selectColumns,
	"to_percent":     toPercent,
}

// Registered reports whether name resolves to a known transform. The
// registry uses this to reject unknown step names at spec load time.
func Registered(name string) bool {
	_, ok := registry[name]
	return ok
}

// Names returns the registered transform names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply runs the pipeline over rows and returns the transformed rows plus
// the trace of executed step names in order. An unknown step name or a step
// failure aborts the pipeline; nothing partial is returned.
func Apply(rows []query.Row, steps []query.TransformStep) ([]query.Row, []string, error) {
	current := rows
	trace := make([]string, 0, len(steps))

	for i, step := range steps {
		fn, ok := registry[step.Name]
		if !ok {
			return nil, nil, &UnknownTransformError{Name: step.Name}
		}
		next, err := fn(current, step.Params)
		if err != nil {
			return nil, nil, &StepError{Index: i, Name: step.Name, Err: err}
		}
		current = next
		trace = append(trace, step.Name)
	}

	return current, trace, nil
}
