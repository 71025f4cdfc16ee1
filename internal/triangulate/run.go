package triangulate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/qnwis/qnwis/internal/cache"
	"github.com/qnwis/qnwis/internal/engine"
	"github.com/qnwis/qnwis/internal/query"
	"github.com/qnwis/qnwis/internal/registry"
)

// sampleLimit caps the evidence rows a check carries into the bundle.
const sampleLimit = 3

// IDGenerator mints run tokens. UUIDGenerator is the production
// implementation; tests inject fixed ones.
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator mints time-sortable UUIDv7 run tokens. Stateless and safe
// for concurrent use.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// CheckResult is the outcome of one battery check.
type CheckResult struct {
	CheckID string      `json:"check_id"`
	Issues  []RuleIssue `json:"issues,omitempty"`
	Samples []query.Row `json:"samples,omitempty"`
}

// Bundle is one triangulation run. Built fresh per run and never
// persisted.
type Bundle struct {
	RunID       string        `json:"run_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Results     []CheckResult `json:"results"`
	Licenses    []string      `json:"licenses,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
}

type runConfig struct {
	ids IDGenerator
	now func() time.Time
}

// RunOption adjusts a triangulation run.
type RunOption func(*runConfig)

// WithIDGenerator replaces the UUIDv7 run token source.
func WithIDGenerator(gen IDGenerator) RunOption {
	return func(c *runConfig) { c.ids = gen }
}

// WithClock pins the bundle timestamp.
func WithClock(now func() time.Time) RunOption {
	return func(c *runConfig) { c.now = now }
}

// Run executes the battery through the engine, cache included. A check
// whose query cannot execute is skipped with a warning; a result that is
// not CSV-backed aborts the run. ttl follows the engine's ttl contract:
// nil stores forever, a value stores with that expiry, and a value above
// the cache ceiling aborts the run rather than skipping every check.
func Run(ctx context.Context, eng *engine.Engine, ttl *time.Duration, opts ...RunOption) (*Bundle, error) {
	cfg := runConfig{ids: UUIDGenerator{}, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	bundle := &Bundle{
		RunID:       cfg.ids.Generate(),
		GeneratedAt: cfg.now(),
	}
	licenses := make(map[string]struct{})

	var execOpts []engine.ExecOption
	if ttl != nil {
		execOpts = append(execOpts, engine.WithTTL(*ttl))
	}

	for _, check := range Battery() {
		results, skipReason, err := fetchCheckQueries(ctx, eng, check, execOpts, licenses)
		if err != nil {
			return nil, err
		}
		if skipReason != "" {
			bundle.Warnings = append(bundle.Warnings,
				fmt.Sprintf("check_skipped:%s:%s", check.ID, skipReason))
			continue
		}

		result := CheckResult{
			CheckID: check.ID,
			Issues:  check.Eval(results),
			Samples: sampleRows(results[check.QueryIDs[0]].Rows),
		}
		bundle.Results = append(bundle.Results, result)
	}

	bundle.Licenses = sortedKeys(licenses)
	slog.Info("triangulation run complete",
		"run_id", bundle.RunID,
		"checks", len(bundle.Results),
		"skipped", len(bundle.Warnings),
	)
	return bundle, nil
}

// fetchCheckQueries executes every query a check needs. A failed query
// yields a skip reason; a non-CSV result is the run-fatal provenance
// violation. Licenses are recorded for every result actually fetched.
func fetchCheckQueries(ctx context.Context, eng *engine.Engine, check Check, execOpts []engine.ExecOption, licenses map[string]struct{}) (map[string]*query.Result, string, error) {
	results := make(map[string]*query.Result, len(check.QueryIDs))
	for _, id := range check.QueryIDs {
		res, err := eng.Execute(ctx, id, execOpts...)
		if err != nil {
			// A rejected ttl is a caller mistake that would skip every
			// check the same way; it fails the run instead of draining it.
			var ttlErr *cache.TTLError
			if errors.As(err, &ttlErr) {
				return nil, "", err
			}
			slog.Warn("triangulation check skipped",
				"check", check.ID,
				"query_id", id,
				"error", err,
			)
			var notFound *registry.SpecNotFoundError
			if errors.As(err, &notFound) {
				return nil, "spec_not_found", nil
			}
			return nil, "query_failed", nil
		}
		if res.Provenance.Source != query.SourceCSV {
			return nil, "", &NonCSVSourceError{
				CheckID: check.ID,
				QueryID: id,
				Source:  res.Provenance.Source,
			}
		}
		if res.Provenance.License != "" {
			licenses[res.Provenance.License] = struct{}{}
		}
		results[id] = res
	}
	return results, "", nil
}

func sampleRows(rows []query.Row) []query.Row {
	if len(rows) <= sampleLimit {
		return rows
	}
	return rows[:sampleLimit]
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
