package triangulate

import (
	"fmt"

	"github.com/qnwis/qnwis/internal/query"
)

// NonCSVSourceError aborts a run whose query resolved to a non-CSV source.
// Cross-source triangulation is defined only over cached CSV-backed
// results in this version.
type NonCSVSourceError struct {
	CheckID string
	QueryID string
	Source  query.Source
}

func (e *NonCSVSourceError) Error() string {
	return fmt.Sprintf("triangulation requires csv-backed results: query %q in check %q came from %q",
		e.QueryID, e.CheckID, string(e.Source))
}
