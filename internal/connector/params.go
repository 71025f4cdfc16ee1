package connector

import (
	"strings"
	"time"

	"github.com/qnwis/qnwis/internal/query"
)

// defaultTimeout bounds HTTP-backed fetches when the spec sets no
// timeout_s param.
const defaultTimeout = 30 * time.Second

func requiredString(spec *query.Spec, name string) (string, error) {
	v, ok := spec.Params[name]
	if !ok {
		return "", &ParamError{Source: spec.Source, Param: name, Reason: "required"}
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", &ParamError{Source: spec.Source, Param: name, Reason: "must be a non-empty string"}
	}
	return s, nil
}

func optionalString(spec *query.Spec, name string) (string, error) {
	v, ok := spec.Params[name]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &ParamError{Source: spec.Source, Param: name, Reason: "must be a string"}
	}
	return s, nil
}

func optionalInt(spec *query.Spec, name string) (int64, bool, error) {
	v, ok := spec.Params[name]
	if !ok {
		return 0, false, nil
	}
	n, ok := query.AsInt(v)
	if !ok {
		return 0, false, &ParamError{Source: spec.Source, Param: name, Reason: "must be an integer"}
	}
	return n, true, nil
}

func optionalMap(spec *query.Spec, name string) (map[string]any, error) {
	v, ok := spec.Params[name]
	if !ok {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &ParamError{Source: spec.Source, Param: name, Reason: "must be a map"}
	}
	return m, nil
}

func optionalStrings(spec *query.Spec, name string) ([]string, error) {
	v, ok := spec.Params[name]
	if !ok {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, &ParamError{Source: spec.Source, Param: name, Reason: "must be a list of strings"}
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, &ParamError{Source: spec.Source, Param: name, Reason: "must be a list of strings"}
	}
}

func optionalList(spec *query.Spec, name string) ([]any, error) {
	v, ok := spec.Params[name]
	if !ok {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, &ParamError{Source: spec.Source, Param: name, Reason: "must be a list"}
	}
	return list, nil
}

// timeoutFrom reads the timeout_s param, in seconds, allowing fractional
// values.
func timeoutFrom(spec *query.Spec) (time.Duration, error) {
	v, ok := spec.Params["timeout_s"]
	if !ok {
		return defaultTimeout, nil
	}
	f, ok := query.AsFloat(v)
	if !ok || f <= 0 {
		return 0, &ParamError{Source: spec.Source, Param: "timeout_s", Reason: "must be a positive number of seconds"}
	}
	return time.Duration(f * float64(time.Second)), nil
}

// resolveUnit picks the result unit: the explicit unit param wins,
// otherwise a percent-suffixed column name marks the whole result percent,
// otherwise count.
func resolveUnit(spec *query.Spec, columns []string) (string, error) {
	explicit, err := optionalString(spec, "unit")
	if err != nil {
		return "", err
	}
	if explicit != "" {
		return explicit, nil
	}
	for _, c := range columns {
		if percentColumn(c) {
			return "percent", nil
		}
	}
	return "count", nil
}

func percentColumn(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, "%") ||
		strings.HasSuffix(lower, "percent") ||
		strings.HasSuffix(lower, "pct")
}
