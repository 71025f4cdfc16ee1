package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is one conformance scenario document.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description"`

	// Specs is the query spec directory. Relative paths resolve against
	// the scenario file's directory.
	Specs string `yaml:"specs"`

	// Data is the CSV data root. Scenarios are CSV-only: network and
	// database sources have no place in a deterministic conformance run.
	Data string `yaml:"data"`

	// Catalog is an optional dataset catalog path.
	Catalog string `yaml:"catalog,omitempty"`

	// Now pins the engine clock, RFC 3339.
	Now string `yaml:"now"`

	// Golden snapshots the run outcome against a golden file.
	Golden bool `yaml:"golden,omitempty"`

	// Steps execute in order against one shared engine and cache.
	Steps []Step `yaml:"steps"`

	// Assertions run after the last step against the final cache state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step executes one query through the engine.
type Step struct {
	// Query is the registry query id.
	Query string `yaml:"query"`

	// TTL is a Go duration string for the cache ttl ("1h", "0s"). Empty
	// keeps the engine default of storing without expiry.
	TTL string `yaml:"ttl,omitempty"`

	// NoStore executes fresh and leaves nothing behind.
	NoStore bool `yaml:"no_store,omitempty"`

	// Bypass skips the cache read but still stores the fresh result.
	Bypass bool `yaml:"bypass,omitempty"`

	// Params merges over the registry spec's params as an override. The
	// step then executes under the override's own cache key.
	Params map[string]any `yaml:"params,omitempty"`

	// Postprocess replaces the registry spec's pipeline as an override.
	Postprocess []OverrideStep `yaml:"postprocess,omitempty"`

	// Expect validates the step's outcome. A step without one must simply
	// succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// OverrideStep is one transform step of a pipeline override.
type OverrideStep struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:"params,omitempty"`
}

// Expect is the per-step expectation clause. Only set fields are checked.
type Expect struct {
	// Cache is "hit" or "miss".
	Cache string `yaml:"cache,omitempty"`

	// Unit is the exact result unit.
	Unit string `yaml:"unit,omitempty"`

	// Rows is the exact row count.
	Rows *int `yaml:"rows,omitempty"`

	// RowContains lists subset matches: each map must match at least one
	// row, comparing numerics across representations.
	RowContains []map[string]any `yaml:"row_contains,omitempty"`

	// Warnings lists substrings; each must appear in some result warning.
	Warnings []string `yaml:"warnings,omitempty"`

	// NoWarnings requires a clean result.
	NoWarnings bool `yaml:"no_warnings,omitempty"`

	// Error requires the step to fail with an error containing this
	// substring. Exclusive with every other field.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final cache state.
type Assertion struct {
	// Type is "stats" or "cache_len".
	Type string `yaml:"type"`

	// Stats counters; only set ones are checked.
	Hits           *int64 `yaml:"hits,omitempty"`
	Misses         *int64 `yaml:"misses,omitempty"`
	Sets           *int64 `yaml:"sets,omitempty"`
	Deletes        *int64 `yaml:"deletes,omitempty"`
	Evictions      *int64 `yaml:"evictions,omitempty"`
	DecodeFailures *int64 `yaml:"decode_failures,omitempty"`

	// Count is the expected number of cached entries (cache_len).
	Count *int `yaml:"count,omitempty"`
}

// Assertion type names.
const (
	AssertStats    = "stats"
	AssertCacheLen = "cache_len"
)

// Load reads, parses, and validates a scenario file. Unknown YAML fields
// are rejected so a typo like "step:" fails loudly instead of silently
// running nothing. Relative specs, data, and catalog paths resolve against
// the scenario file's directory.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	base := filepath.Dir(path)
	scenario.Specs = resolvePath(base, scenario.Specs)
	scenario.Data = resolvePath(base, scenario.Data)
	scenario.Catalog = resolvePath(base, scenario.Catalog)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// validateScenario checks required fields and value shapes before any
// engine work happens.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Specs == "" {
		return fmt.Errorf("specs directory is required")
	}
	if s.Data == "" {
		return fmt.Errorf("data directory is required")
	}
	if s.Now == "" {
		return fmt.Errorf("now is required")
	}
	if _, err := time.Parse(time.RFC3339, s.Now); err != nil {
		return fmt.Errorf("now must be RFC 3339: %w", err)
	}
	if info, err := os.Stat(s.Specs); err != nil || !info.IsDir() {
		return fmt.Errorf("specs directory not found: %s", s.Specs)
	}
	if info, err := os.Stat(s.Data); err != nil || !info.IsDir() {
		return fmt.Errorf("data directory not found: %s", s.Data)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Query == "" {
			return fmt.Errorf("steps[%d]: query is required", i)
		}
		if step.TTL != "" {
			if _, err := time.ParseDuration(step.TTL); err != nil {
				return fmt.Errorf("steps[%d]: ttl: %w", i, err)
			}
		}
		for j, t := range step.Postprocess {
			if t.Name == "" {
				return fmt.Errorf("steps[%d].postprocess[%d]: name is required", i, j)
			}
		}
		if err := validateExpect(i, step.Expect); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateExpect(step int, e *Expect) error {
	if e == nil {
		return nil
	}
	if e.Error != "" {
		if e.Cache != "" || e.Unit != "" || e.Rows != nil ||
			len(e.RowContains) > 0 || len(e.Warnings) > 0 || e.NoWarnings {
			return fmt.Errorf("steps[%d].expect: error is exclusive with result expectations", step)
		}
		return nil
	}
	switch e.Cache {
	case "", "hit", "miss":
	default:
		return fmt.Errorf("steps[%d].expect: cache must be \"hit\" or \"miss\", got %q", step, e.Cache)
	}
	if e.Rows != nil && *e.Rows < 0 {
		return fmt.Errorf("steps[%d].expect: rows must be non-negative", step)
	}
	if e.NoWarnings && len(e.Warnings) > 0 {
		return fmt.Errorf("steps[%d].expect: no_warnings conflicts with warnings", step)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertStats:
		if a.Hits == nil && a.Misses == nil && a.Sets == nil &&
			a.Deletes == nil && a.Evictions == nil && a.DecodeFailures == nil {
			return fmt.Errorf("assertions[%d]: stats assertion sets no counters", index)
		}
	case AssertCacheLen:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for cache_len", index)
		}
		if *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
