package registry

import (
	"fmt"

	"cuelang.org/go/cue/token"
)

// RootNotFoundError reports a spec root that does not exist or is not a
// directory.
type RootNotFoundError struct {
	Root string
}

func (e *RootNotFoundError) Error() string {
	return fmt.Sprintf("spec root %q not found", e.Root)
}

// NoSpecsError reports a root with no .cue files under it.
type NoSpecsError struct {
	Root string
}

func (e *NoSpecsError) Error() string {
	return fmt.Sprintf("no query specs found under %q", e.Root)
}

// DuplicateSpecError reports the same query id defined in two files.
type DuplicateSpecError struct {
	ID       string
	File     string
	PrevFile string
}

func (e *DuplicateSpecError) Error() string {
	return fmt.Sprintf("duplicate query id %q in %s, first defined in %s", e.ID, e.File, e.PrevFile)
}

// SpecNotFoundError reports a lookup of an unknown query id.
type SpecNotFoundError struct {
	ID string
}

func (e *SpecNotFoundError) Error() string {
	return fmt.Sprintf("query spec %q not found", e.ID)
}

// CompileError reports a spec file that failed to compile or validate,
// with the CUE source position when one is available.
type CompileError struct {
	File    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
}
