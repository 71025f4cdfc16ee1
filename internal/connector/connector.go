package connector

import (
	"context"

	"github.com/qnwis/qnwis/internal/query"
)

// WarnEmptyResult tags results from database- and API-backed sources that
// matched nothing. File-backed sources raise *NoRowsError instead.
const WarnEmptyResult = "empty_result"

// Connector serves one source family.
type Connector interface {
	// Fetch resolves the spec's params against the source and returns raw
	// rows. Implementations block on file, database, or network I/O and
	// honor ctx cancellation where the underlying transport does.
	Fetch(ctx context.Context, spec *query.Spec) (*query.Result, error)
}
