package connector

import (
	"fmt"
	"time"

	"github.com/qnwis/qnwis/internal/query"
)

// ParamError reports a missing or malformed spec parameter.
type ParamError struct {
	Source query.Source
	Param  string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s param %q: %s", e.Source, e.Param, e.Reason)
}

// NotFoundError reports a source file or resource that does not exist.
type NotFoundError struct {
	Source  query.Source
	Locator string
	Err     error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s source %q not found", e.Source, e.Locator)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// TimeoutError reports a source that exceeded its own time budget, set by
// the timeout_s param.
type TimeoutError struct {
	Source query.Source
	Limit  time.Duration
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s source timed out after %s", e.Source, e.Limit)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// UnavailableError reports a source that could not serve the request:
// network failure, bad status, malformed payload, or no registered
// connector for the spec's source.
type UnavailableError struct {
	Source query.Source
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s source unavailable: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s source unavailable: %s", e.Source, e.Reason)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// NoRowsError reports a file-backed query that matched no rows.
type NoRowsError struct {
	Dataset string
}

func (e *NoRowsError) Error() string {
	return fmt.Sprintf("no rows matched in dataset %q", e.Dataset)
}
