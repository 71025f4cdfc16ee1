package connector

import (
	"context"
	"log/slog"

	"github.com/qnwis/qnwis/internal/query"
)

// DegradedFallbackPrefix prefixes the warning a degraded fetch carries.
// The full warning is the prefix plus the unserved source value.
const DegradedFallbackPrefix = "degraded_source_fallback:"

// Dispatcher routes a spec to the connector registered for its source.
//
// A source with no registered connector is an *UnavailableError by
// default. With WithDegradedFallback the fetch is retried through the CSV
// connector instead, logged at WARN and tagged on the result, so operators
// can keep a misconfigured fleet limping while they fix it. Degraded mode
// is never the default.
type Dispatcher struct {
	connectors map[query.Source]Connector
	degraded   bool
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDegradedFallback enables routing unserved sources through the CSV
// connector.
func WithDegradedFallback(enabled bool) DispatcherOption {
	return func(d *Dispatcher) { d.degraded = enabled }
}

// NewDispatcher builds a dispatcher over the given connectors. The map is
// copied; later mutation by the caller has no effect.
func NewDispatcher(connectors map[query.Source]Connector, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{connectors: make(map[query.Source]Connector, len(connectors))}
	for source, c := range connectors {
		d.connectors[source] = c
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch routes spec to its connector.
func (d *Dispatcher) Fetch(ctx context.Context, spec *query.Spec) (*query.Result, error) {
	if c, ok := d.connectors[spec.Source]; ok {
		return c.Fetch(ctx, spec)
	}

	fallback, ok := d.connectors[query.SourceCSV]
	if !d.degraded || !ok {
		return nil, &UnavailableError{
			Source: spec.Source,
			Reason: "no connector registered",
		}
	}

	slog.Warn("no connector for source, degrading to csv",
		"query_id", spec.ID,
		"source", string(spec.Source))

	result, err := fallback.Fetch(ctx, spec)
	if err != nil {
		return nil, err
	}
	result.Warnings = append(result.Warnings, DegradedFallbackPrefix+string(spec.Source))
	return result, nil
}
