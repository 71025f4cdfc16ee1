package transform

import "fmt"

// UnknownTransformError reports a step name with no registered transform.
// The registry rejects these at spec load; this error surfaces only for
// pipelines supplied at execution time, such as per-request overrides.
type UnknownTransformError struct {
	Name string
}

func (e *UnknownTransformError) Error() string {
	return fmt.Sprintf("unknown transform %q", e.Name)
}

// StepError wraps a failure inside one pipeline step with its position.
type StepError struct {
	Index int
	Name  string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
