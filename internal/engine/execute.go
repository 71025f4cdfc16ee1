package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/qnwis/qnwis/internal/cache"
	"github.com/qnwis/qnwis/internal/query"
	"github.com/qnwis/qnwis/internal/transform"
	"github.com/qnwis/qnwis/internal/verify"
)

type execConfig struct {
	override *query.Spec
	ttl      *time.Duration
	noStore  bool
	bypass   bool
}

// ExecOption adjusts a single execution.
type ExecOption func(*execConfig)

// WithOverride executes an ad-hoc spec instead of the registry's. The
// override's id must equal the requested query id; the spec is deep-copied
// so the caller's value is never mutated.
func WithOverride(spec *query.Spec) ExecOption {
	return func(c *execConfig) { c.override = spec }
}

// WithTTL stores the result with the given ttl, overriding the engine
// default. Anything above the 24h ceiling fails the execution before any
// work happens.
func WithTTL(ttl time.Duration) ExecOption {
	return func(c *execConfig) { c.ttl = &ttl }
}

// WithNoStore executes fresh without consulting the cache, deletes any
// existing entry for the key, and stores nothing.
func WithNoStore() ExecOption {
	return func(c *execConfig) { c.noStore = true }
}

// WithBypass skips the cache read but still writes the fresh result, which
// forcibly overwrites a cached entry without dropping it first.
func WithBypass() ExecOption {
	return func(c *execConfig) { c.bypass = true }
}

// Execute runs one query: resolve the spec, try the cache, fall back to
// the connector, postprocess, verify, enrich, and store per the ttl
// policy. Every fresh execution counts as a miss, including bypassed and
// no-store ones.
func (e *Engine) Execute(ctx context.Context, queryID string, opts ...ExecOption) (*query.Result, error) {
	cfg := execConfig{ttl: e.defaultTTL}
	for _, opt := range opts {
		opt(&cfg)
	}

	spec, err := e.resolveSpec(queryID, &cfg)
	if err != nil {
		return nil, err
	}

	shouldStore, expiry, err := cache.ResolveTTL(cfg.ttl)
	if err != nil {
		return nil, err
	}
	if cfg.noStore {
		shouldStore = false
	}

	key, err := cache.Key(spec)
	if err != nil {
		return nil, err
	}

	// The no-store path always executes fresh, so the read is skipped too:
	// returning a cached value under ttl <= 0 would contradict it.
	if !cfg.bypass && shouldStore {
		if result, ok := e.readCache(ctx, key, spec); ok {
			return result, nil
		}
	}

	e.stats.Miss()
	result, err := e.executeFresh(ctx, spec)
	if err != nil {
		return nil, err
	}

	if shouldStore {
		e.writeCache(ctx, key, result, expiry)
	} else if err := e.backend.Delete(ctx, key); err != nil {
		slog.Warn("cache delete failed",
			"query_id", spec.ID,
			"key", key,
			"error", err,
		)
	} else {
		e.stats.Delete()
	}

	return result, nil
}

// resolveSpec picks the override when present, otherwise the registry's
// spec. The registry pointer is shared and read-only; the override is
// cloned because the caller keeps ownership.
func (e *Engine) resolveSpec(queryID string, cfg *execConfig) (*query.Spec, error) {
	if cfg.override == nil {
		return e.registry.Get(queryID)
	}
	if cfg.override.ID != queryID {
		return nil, &SpecMismatchError{QueryID: queryID, OverrideID: cfg.override.ID}
	}
	return cfg.override.Clone(), nil
}

// readCache attempts a hit. A present entry that fails to decode is
// deleted so the next request starts clean; the failure never reaches the
// caller, it just becomes a miss.
func (e *Engine) readCache(ctx context.Context, key string, spec *query.Spec) (*query.Result, bool) {
	raw, ok, err := e.backend.Get(ctx, key)
	if err != nil {
		slog.Warn("cache read failed, executing fresh",
			"query_id", spec.ID,
			"key", key,
			"error", err,
		)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	result, err := cache.Decode(raw)
	if err != nil {
		e.stats.DecodeFailure()
		e.stats.Evict()
		if delErr := e.backend.Delete(ctx, key); delErr != nil {
			slog.Warn("self-heal delete failed",
				"key", key,
				"error", delErr,
			)
		}
		slog.Warn("cache decode failed, entry dropped",
			"query_id", spec.ID,
			"key", key,
			"error", err,
		)
		return nil, false
	}

	e.stats.Hit()
	e.enrichLicense(result)
	e.refreshFreshness(spec, result)
	slog.Debug("cache hit",
		"query_id", spec.ID,
		"key", key,
	)
	return result, true
}

// executeFresh runs the connector and the downstream stages that shape the
// result before it is stored: postprocess, unit verification, license
// enrichment, freshness verification.
func (e *Engine) executeFresh(ctx context.Context, spec *query.Spec) (*query.Result, error) {
	result, err := e.dispatcher.Fetch(ctx, spec)
	if err != nil {
		return nil, err
	}

	if len(spec.Postprocess) > 0 {
		rows, trace, err := transform.Apply(result.Rows, spec.Postprocess)
		if err != nil {
			return nil, err
		}
		result.Rows = rows
		result.Trace = append(result.Trace, trace...)
	}

	result.Warnings = append(result.Warnings, verify.Units(spec, result)...)
	e.enrichLicense(result)
	result.Warnings = append(result.Warnings, verify.Freshness(spec, result, e.now())...)

	slog.Debug("query executed",
		"query_id", spec.ID,
		"source", string(spec.Source),
		"rows", len(result.Rows),
		"warnings", len(result.Warnings),
	)
	return result, nil
}

// writeCache encodes and stores the result. Write failures cost the caller
// nothing but a warning: the result is already in hand.
func (e *Engine) writeCache(ctx context.Context, key string, result *query.Result, expiry time.Duration) {
	envelope, err := cache.Encode(result)
	if err != nil {
		slog.Warn("cache encode failed, result not stored",
			"key", key,
			"error", err,
		)
		return
	}
	if err := e.backend.Set(ctx, key, envelope, expiry); err != nil {
		slog.Warn("cache write failed",
			"key", key,
			"error", err,
		)
		return
	}
	e.stats.Set()
}

// enrichLicense fills Provenance.License when a catalog pattern matches
// the dataset id or locator. Runs on both fresh and cached results so a
// catalog update reaches entries stored before it.
func (e *Engine) enrichLicense(result *query.Result) {
	if license, ok := e.catalog.LicenseFor(result.Provenance.DatasetID, result.Provenance.Locator); ok {
		result.Provenance.License = license
	}
}

// refreshFreshness replaces stored freshness warnings with ones computed
// against the current clock. Data age moves while a cached payload does
// not; every other warning is preserved as stored.
func (e *Engine) refreshFreshness(spec *query.Spec, result *query.Result) {
	var kept []string
	for _, w := range result.Warnings {
		if !verify.IsFreshnessWarning(w) {
			kept = append(kept, w)
		}
	}
	result.Warnings = append(kept, verify.Freshness(spec, result, e.now())...)
}
