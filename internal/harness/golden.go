package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/qnwis/qnwis/internal/query"
)

// RunWithGolden executes a scenario and, when the scenario is marked
// golden, compares its outcome snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// Regenerate golden files with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if !scenario.Golden {
		return result, nil
	}

	data, err := query.MarshalCanonical(snapshotMap(scenario.Name, result))
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return result, nil
}

// snapshotMap flattens a result into plain maps and slices for canonical
// JSON. Pass/fail and expectation errors stay out of the snapshot: a golden
// file pins what the engine produced, not how it was judged.
func snapshotMap(scenarioName string, result *Result) map[string]any {
	steps := make([]any, len(result.Steps))
	for i, s := range result.Steps {
		step := map[string]any{"query_id": s.QueryID}
		if s.ServedBy != "" {
			step["served_by"] = s.ServedBy
		}
		if s.Unit != "" {
			step["unit"] = s.Unit
		}
		if s.Rows != nil {
			rows := make([]any, len(s.Rows))
			for j, row := range s.Rows {
				rows[j] = row
			}
			step["rows"] = rows
		}
		if len(s.Warnings) > 0 {
			step["warnings"] = s.Warnings
		}
		if len(s.Trace) > 0 {
			step["trace"] = s.Trace
		}
		if s.Err != "" {
			step["error"] = s.Err
		}
		steps[i] = step
	}

	return map[string]any{
		"scenario_name": scenarioName,
		"steps":         steps,
		"stats": map[string]any{
			"hits":            result.Stats.Hits,
			"misses":          result.Stats.Misses,
			"sets":            result.Stats.Sets,
			"deletes":         result.Stats.Deletes,
			"evictions":       result.Stats.Evictions,
			"decode_failures": result.Stats.DecodeFailures,
			"hit_rate":        result.Stats.HitRate,
		},
	}
}
