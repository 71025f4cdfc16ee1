package registry

import (
	"fmt"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/qnwis/qnwis/internal/query"
	"github.com/qnwis/qnwis/internal/transform"
)

// validUnits are the expected_unit values a spec may declare. "unknown"
// suppresses unit verification for that query.
var validUnits = map[string]bool{
	"count":   true,
	"percent": true,
	"qar":     true,
	"usd":     true,
	"index":   true,
	"unknown": true,
}

// compileSpec parses one CUE document into a query spec and validates
// everything the engine later relies on: id and source present, the source
// known, the expected unit in the vocabulary, constraints well-shaped, and
// every postprocess step naming a registered transform.
func compileSpec(v cue.Value, file string) (*query.Spec, error) {
	if err := v.Err(); err != nil {
		return nil, wrapCUEError(err, file)
	}

	spec := &query.Spec{}

	id, err := stringField(v, "id", file, true)
	if err != nil {
		return nil, err
	}
	spec.ID = id

	if spec.Title, err = stringField(v, "title", file, false); err != nil {
		return nil, err
	}
	if spec.Description, err = stringField(v, "description", file, false); err != nil {
		return nil, err
	}

	sourceName, err := stringField(v, "source", file, true)
	if err != nil {
		return nil, err
	}
	source := query.Source(sourceName)
	if !source.Valid() {
		return nil, &CompileError{
			File:    file,
			Field:   "source",
			Message: fmt.Sprintf("unknown source %q", sourceName),
			Pos:     fieldPos(v, "source"),
		}
	}
	spec.Source = source

	if paramsVal := v.LookupPath(cue.ParsePath("params")); paramsVal.Exists() {
		spec.Params, err = decodeStruct(paramsVal, file, "params")
		if err != nil {
			return nil, err
		}
	}

	unit, err := stringField(v, "expected_unit", file, false)
	if err != nil {
		return nil, err
	}
	if unit == "" {
		unit = query.UnitUnknown
	}
	if !validUnits[unit] {
		return nil, &CompileError{
			File:    file,
			Field:   "expected_unit",
			Message: fmt.Sprintf("unknown unit %q", unit),
			Pos:     fieldPos(v, "expected_unit"),
		}
	}
	spec.ExpectedUnit = unit

	if consVal := v.LookupPath(cue.ParsePath("constraints")); consVal.Exists() {
		spec.Constraints, err = decodeStruct(consVal, file, "constraints")
		if err != nil {
			return nil, err
		}
		if err := checkConstraints(spec.Constraints, consVal, file); err != nil {
			return nil, err
		}
	}

	spec.Postprocess, err = compilePostprocess(v, file)
	if err != nil {
		return nil, err
	}

	return spec, nil
}

// stringField extracts a top-level string field. A required field must
// exist and be non-empty; an optional one may be absent but not mistyped.
func stringField(v cue.Value, name, file string, required bool) (string, error) {
	fieldVal := v.LookupPath(cue.ParsePath(name))
	if !fieldVal.Exists() {
		if required {
			return "", &CompileError{
				File:    file,
				Field:   name,
				Message: name + " is required",
				Pos:     v.Pos(),
			}
		}
		return "", nil
	}
	s, err := fieldVal.String()
	if err != nil {
		return "", &CompileError{
			File:    file,
			Field:   name,
			Message: "must be a string",
			Pos:     fieldVal.Pos(),
		}
	}
	if required && s == "" {
		return "", &CompileError{
			File:    file,
			Field:   name,
			Message: name + " must not be empty",
			Pos:     fieldVal.Pos(),
		}
	}
	return s, nil
}

// checkConstraints vets the constraint values the verifiers consume.
// Unknown constraint keys pass through untouched.
func checkConstraints(constraints map[string]any, v cue.Value, file string) error {
	if raw, ok := constraints["freshness_sla_days"]; ok {
		if days, isInt := query.AsInt(raw); !isInt || days < 0 {
			return &CompileError{
				File:    file,
				Field:   "constraints.freshness_sla_days",
				Message: "must be a non-negative integer",
				Pos:     fieldPos(v, "freshness_sla_days"),
			}
		}
	}
	if raw, ok := constraints["sum_to_one"]; ok {
		if _, isBool := raw.(bool); !isBool {
			return &CompileError{
				File:    file,
				Field:   "constraints.sum_to_one",
				Message: "must be a bool",
				Pos:     fieldPos(v, "sum_to_one"),
			}
		}
	}
	return nil
}

// compilePostprocess parses the optional postprocess list. Every step
// must name a registered transform so a bad pipeline fails at load time,
// not at query time.
func compilePostprocess(v cue.Value, file string) ([]query.TransformStep, error) {
	listVal := v.LookupPath(cue.ParsePath("postprocess"))
	if !listVal.Exists() {
		return nil, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, &CompileError{
			File:    file,
			Field:   "postprocess",
			Message: "must be a list",
			Pos:     listVal.Pos(),
		}
	}

	var steps []query.TransformStep
	for i := 0; iter.Next(); i++ {
		stepVal := iter.Value()
		field := fmt.Sprintf("postprocess[%d]", i)

		nameVal := stepVal.LookupPath(cue.ParsePath("name"))
		if !nameVal.Exists() {
			return nil, &CompileError{
				File:    file,
				Field:   field,
				Message: "step name is required",
				Pos:     stepVal.Pos(),
			}
		}
		name, err := nameVal.String()
		if err != nil || name == "" {
			return nil, &CompileError{
				File:    file,
				Field:   field + ".name",
				Message: "must be a non-empty string",
				Pos:     nameVal.Pos(),
			}
		}
		if !transform.Registered(name) {
			return nil, &CompileError{
				File:    file,
				Field:   field,
				Message: fmt.Sprintf("unknown transform %q", name),
				Pos:     nameVal.Pos(),
			}
		}

		step := query.TransformStep{Name: name}
		if paramsVal := stepVal.LookupPath(cue.ParsePath("params")); paramsVal.Exists() {
			step.Params, err = decodeStruct(paramsVal, file, field+".params")
			if err != nil {
				return nil, err
			}
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// decodeValue converts a concrete CUE value into the plain Go shapes the
// canonical hash understands: int64, float64, string, bool, nil, []any,
// and map[string]any. CUE's own Decode would hand back types the hash
// cannot canonicalize, so the conversion is explicit.
func decodeValue(v cue.Value, file, path string) (any, error) {
	switch v.Kind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, wrapCUEError(err, file)
		}
		return b, nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, wrapCUEError(err, file)
		}
		return n, nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, wrapCUEError(err, file)
		}
		return f, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, wrapCUEError(err, file)
		}
		return s, nil
	case cue.ListKind:
		return decodeList(v, file, path)
	case cue.StructKind:
		return decodeStruct(v, file, path)
	default:
		// Kind() is BottomKind for non-concrete values like bare `string`.
		return nil, &CompileError{
			File:    file,
			Field:   path,
			Message: fmt.Sprintf("unsupported or non-concrete value (kind %v)", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

func decodeList(v cue.Value, file, path string) ([]any, error) {
	iter, err := v.List()
	if err != nil {
		return nil, wrapCUEError(err, file)
	}
	out := []any{}
	for i := 0; iter.Next(); i++ {
		item, err := decodeValue(iter.Value(), file, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func decodeStruct(v cue.Value, file, path string) (map[string]any, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, &CompileError{
			File:    file,
			Field:   path,
			Message: "must be a struct",
			Pos:     v.Pos(),
		}
	}
	out := make(map[string]any)
	for iter.Next() {
		label := iter.Label()
		item, err := decodeValue(iter.Value(), file, path+"."+label)
		if err != nil {
			return nil, err
		}
		out[label] = item
	}
	return out, nil
}

// fieldPos returns the position of a named field when it exists, else the
// enclosing value's position.
func fieldPos(v cue.Value, name string) token.Pos {
	if f := v.LookupPath(cue.ParsePath(name)); f.Exists() {
		return f.Pos()
	}
	return v.Pos()
}

// wrapCUEError extracts position info from CUE's own errors so load
// failures point at the offending file and line.
func wrapCUEError(err error, file string) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	ce := &CompileError{File: file, Field: "cue", Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
