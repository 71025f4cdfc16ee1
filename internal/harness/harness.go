package harness

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/qnwis/qnwis/internal/cache"
	"github.com/qnwis/qnwis/internal/catalog"
	"github.com/qnwis/qnwis/internal/connector"
	"github.com/qnwis/qnwis/internal/engine"
	"github.com/qnwis/qnwis/internal/query"
	"github.com/qnwis/qnwis/internal/registry"
	"github.com/qnwis/qnwis/internal/testutil"
)

// ServedBy values recorded per step.
const (
	ServedFresh = "fresh"
	ServedCache = "cache"
)

// StepOutcome is what one step produced.
type StepOutcome struct {
	QueryID  string      `json:"query_id"`
	ServedBy string      `json:"served_by,omitempty"`
	Unit     string      `json:"unit,omitempty"`
	Rows     []query.Row `json:"rows,omitempty"`
	Warnings []string    `json:"warnings,omitempty"`
	Trace    []string    `json:"trace,omitempty"`
	Err      string      `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Steps mirrors the scenario's steps in order.
	Steps []StepOutcome `json:"steps"`

	// Errors lists expectation failures. Empty when Pass.
	Errors []string `json:"errors,omitempty"`

	// Stats is the final cache counter snapshot.
	Stats cache.Snapshot `json:"stats"`

	// CacheLen is the number of entries left in the backend.
	CacheLen int `json:"cache_len"`
}

// NewResult starts a passing result.
func NewResult() *Result {
	return &Result{Pass: true}
}

// AddError records an expectation failure and fails the result.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Run executes a scenario against a fresh engine: new memory backend, new
// stats, clock pinned to the scenario's now. Run returns an error only for
// setup problems (bad specs directory, unparsable now); expectation
// failures land in the result.
func Run(scenario *Scenario) (*Result, error) {
	now, err := time.Parse(time.RFC3339, scenario.Now)
	if err != nil {
		return nil, fmt.Errorf("scenario now: %w", err)
	}

	reg, err := registry.Load(scenario.Specs)
	if err != nil {
		return nil, fmt.Errorf("load specs: %w", err)
	}

	clock := testutil.NewClock(now)
	stats := cache.NewStats()
	backend := cache.NewMemory(
		cache.WithMemoryClock(clock.Now),
		cache.WithMemoryStats(stats),
	)
	disp := connector.NewDispatcher(map[query.Source]connector.Connector{
		query.SourceCSV: connector.NewCSV(scenario.Data),
	})
	cat := catalog.Empty()
	if scenario.Catalog != "" {
		cat = catalog.Load(scenario.Catalog)
	}
	eng := engine.New(reg, disp, backend, cat,
		engine.WithNow(clock.Now),
		engine.WithStats(stats),
	)

	result := NewResult()
	ctx := context.Background()

	for i, step := range scenario.Steps {
		before := stats.Snapshot()
		res, execErr := executeStep(ctx, eng, reg, step)
		after := stats.Snapshot()

		outcome := StepOutcome{QueryID: step.Query}
		if execErr != nil {
			outcome.Err = execErr.Error()
		} else {
			outcome.Unit = res.Unit
			outcome.Rows = res.Rows
			outcome.Warnings = res.Warnings
			outcome.Trace = res.Trace
			if after.Hits > before.Hits {
				outcome.ServedBy = ServedCache
			} else {
				outcome.ServedBy = ServedFresh
			}
		}
		result.Steps = append(result.Steps, outcome)
		evaluateExpect(result, i, step, res, execErr, outcome.ServedBy)
	}

	snap := stats.Snapshot()
	for i, a := range scenario.Assertions {
		evaluateAssertion(result, i, a, snap, backend.Len())
	}

	result.Stats = snap
	result.CacheLen = backend.Len()
	slog.Debug("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"steps", len(result.Steps),
		"errors", len(result.Errors),
	)
	return result, nil
}

// executeStep translates a step into engine options and executes it.
func executeStep(ctx context.Context, eng *engine.Engine, reg *registry.Registry, step Step) (*query.Result, error) {
	var opts []engine.ExecOption
	if step.TTL != "" {
		ttl, err := time.ParseDuration(step.TTL)
		if err != nil {
			return nil, fmt.Errorf("step ttl: %w", err)
		}
		opts = append(opts, engine.WithTTL(ttl))
	}
	if step.NoStore {
		opts = append(opts, engine.WithNoStore())
	}
	if step.Bypass {
		opts = append(opts, engine.WithBypass())
	}
	if len(step.Params) > 0 || len(step.Postprocess) > 0 {
		spec, err := overrideSpec(reg, step)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithOverride(spec))
	}
	return eng.Execute(ctx, step.Query, opts...)
}

// overrideSpec builds an ad-hoc spec from the registry's, merging the
// step's params over the spec's and replacing the pipeline when one is
// given. The registry spec itself is never touched.
func overrideSpec(reg *registry.Registry, step Step) (*query.Spec, error) {
	base, err := reg.Get(step.Query)
	if err != nil {
		return nil, err
	}
	spec := base.Clone()
	if len(step.Params) > 0 {
		if spec.Params == nil {
			spec.Params = make(map[string]any, len(step.Params))
		}
		for k, v := range step.Params {
			spec.Params[k] = v
		}
	}
	if len(step.Postprocess) > 0 {
		steps := make([]query.TransformStep, len(step.Postprocess))
		for i, t := range step.Postprocess {
			steps[i] = query.TransformStep{Name: t.Name, Params: t.Params}
		}
		spec.Postprocess = steps
	}
	return spec, nil
}

func evaluateExpect(result *Result, idx int, step Step, res *query.Result, execErr error, servedBy string) {
	fail := func(format string, args ...any) {
		result.AddError(fmt.Sprintf("step %d (%s): %s", idx, step.Query, fmt.Sprintf(format, args...)))
	}

	exp := step.Expect
	if exp != nil && exp.Error != "" {
		switch {
		case execErr == nil:
			fail("expected error containing %q, query succeeded", exp.Error)
		case !strings.Contains(execErr.Error(), exp.Error):
			fail("expected error containing %q, got %q", exp.Error, execErr)
		}
		return
	}
	if execErr != nil {
		fail("unexpected error: %v", execErr)
		return
	}
	if exp == nil {
		return
	}

	if exp.Cache != "" {
		want := ServedFresh
		if exp.Cache == "hit" {
			want = ServedCache
		}
		if servedBy != want {
			fail("expected cache %s, step was served %s", exp.Cache, servedBy)
		}
	}
	if exp.Unit != "" && res.Unit != exp.Unit {
		fail("expected unit %q, got %q", exp.Unit, res.Unit)
	}
	if exp.Rows != nil && len(res.Rows) != *exp.Rows {
		fail("expected %d rows, got %d", *exp.Rows, len(res.Rows))
	}
	for _, want := range exp.RowContains {
		if !containsRow(res.Rows, want) {
			fail("no row matches %v", want)
		}
	}
	for _, sub := range exp.Warnings {
		if !warningsContain(res.Warnings, sub) {
			fail("no warning contains %q in %v", sub, res.Warnings)
		}
	}
	if exp.NoWarnings && len(res.Warnings) > 0 {
		fail("expected no warnings, got %v", res.Warnings)
	}
}

func evaluateAssertion(result *Result, idx int, a Assertion, snap cache.Snapshot, cacheLen int) {
	fail := func(format string, args ...any) {
		result.AddError(fmt.Sprintf("assertion %d (%s): %s", idx, a.Type, fmt.Sprintf(format, args...)))
	}

	switch a.Type {
	case AssertStats:
		check := func(name string, want *int64, got int64) {
			if want != nil && *want != got {
				fail("%s = %d, want %d", name, got, *want)
			}
		}
		check("hits", a.Hits, snap.Hits)
		check("misses", a.Misses, snap.Misses)
		check("sets", a.Sets, snap.Sets)
		check("deletes", a.Deletes, snap.Deletes)
		check("evictions", a.Evictions, snap.Evictions)
		check("decode_failures", a.DecodeFailures, snap.DecodeFailures)
	case AssertCacheLen:
		if a.Count != nil && cacheLen != *a.Count {
			fail("cache holds %d entries, want %d", cacheLen, *a.Count)
		}
	}
}

// containsRow reports whether any row subset-matches want: every wanted key
// present and equal, numerics compared across representations.
func containsRow(rows []query.Row, want map[string]any) bool {
	for _, row := range rows {
		if rowMatches(row, want) {
			return true
		}
	}
	return false
}

func rowMatches(row query.Row, want map[string]any) bool {
	for k, v := range want {
		got, ok := row[k]
		if !ok || !query.NumericEqual(got, v) {
			return false
		}
	}
	return true
}

func warningsContain(warnings []string, sub string) bool {
	for _, w := range warnings {
		if strings.Contains(w, sub) {
			return true
		}
	}
	return false
}
