package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/qnwis/qnwis/internal/cache"
	"github.com/qnwis/qnwis/internal/catalog"
	"github.com/qnwis/qnwis/internal/connector"
	"github.com/qnwis/qnwis/internal/registry"
)

// Engine executes registry queries through the cache. One Engine owns one
// Stats value; share it with the backend (WithMemoryStats/WithSQLiteStats)
// so expiry evictions land on the same counters.
type Engine struct {
	registry   *registry.Registry
	dispatcher *connector.Dispatcher
	backend    cache.Backend
	catalog    *catalog.Catalog
	stats      *cache.Stats
	defaultTTL *time.Duration
	now        func() time.Time
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithNow pins the engine's clock. Freshness warnings and age computation
// use this clock; tests pin it to keep golden output stable.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithStats shares a Stats value built by the caller, typically one that
// also carries a Prometheus mirror and is wired into the backend.
func WithStats(stats *cache.Stats) Option {
	return func(e *Engine) { e.stats = stats }
}

// WithDefaultTTL sets the ttl used when an execution passes no WithTTL.
// Without this option entries store without expiry.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.defaultTTL = &ttl }
}

// New builds an Engine. A nil catalog behaves as an empty one: results
// keep whatever license the connector set.
func New(reg *registry.Registry, disp *connector.Dispatcher, backend cache.Backend, cat *catalog.Catalog, opts ...Option) *Engine {
	e := &Engine{
		registry:   reg,
		dispatcher: disp,
		backend:    backend,
		catalog:    cat,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.catalog == nil {
		e.catalog = catalog.Empty()
	}
	if e.stats == nil {
		e.stats = cache.NewStats()
	}
	return e
}

// Stats returns a point-in-time snapshot of the engine's cache counters.
func (e *Engine) Stats() cache.Snapshot {
	return e.stats.Snapshot()
}

// Invalidate drops cached entries for queryID and reports how many keys
// were deleted. Backends that list keys by prefix lose every param-hash
// variant of the id; others lose only the key derived from the registry's
// current spec.
func (e *Engine) Invalidate(ctx context.Context, queryID string) (int, error) {
	spec, err := e.registry.Get(queryID)
	if err != nil {
		return 0, err
	}

	if lister, ok := e.backend.(cache.PrefixLister); ok {
		keys, err := lister.KeysWithPrefix(ctx, cache.IDPrefix(queryID))
		if err != nil {
			return 0, err
		}
		deleted := 0
		for _, key := range keys {
			if err := e.backend.Delete(ctx, key); err != nil {
				return deleted, err
			}
			e.stats.Delete()
			deleted++
		}
		slog.Info("cache invalidated",
			"query_id", queryID,
			"deleted", deleted,
		)
		return deleted, nil
	}

	key, err := cache.Key(spec)
	if err != nil {
		return 0, err
	}
	if err := e.backend.Delete(ctx, key); err != nil {
		return 0, err
	}
	e.stats.Delete()
	slog.Info("cache invalidated",
		"query_id", queryID,
		"deleted", 1,
	)
	return 1, nil
}
