package engine

import "fmt"

// SpecMismatchError reports an override spec whose id differs from the
// requested query id. Overrides tune a known query's params; they never
// smuggle in a different query.
type SpecMismatchError struct {
	QueryID    string
	OverrideID string
}

func (e *SpecMismatchError) Error() string {
	return fmt.Sprintf("override spec id %q does not match query id %q", e.OverrideID, e.QueryID)
}
