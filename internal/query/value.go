package query

import (
	"encoding/json"
	"strings"
)

// AsFloat coerces any JSON numeric representation to float64. Strings are
// not coerced; cell-level string parsing is a connector concern.
func AsFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// AsInt coerces integral numeric values to int64. Floats with a fractional
// part do not coerce. JSON decoding turns every number into float64, so
// params like limit or top_n's n arrive here as integral floats.
func AsInt(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint64:
		return int64(val), true
	case float64:
		if val == float64(int64(val)) {
			return int64(val), true
		}
		return 0, false
	case json.Number:
		i, err := val.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// Truthy interprets a constraint value as a boolean flag. Booleans are
// themselves, numbers are true when non-zero, and the strings "true", "1",
// and "yes" (case-insensitive) are true. Everything else, including nil,
// is false.
func Truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes":
			return true
		}
		return false
	default:
		if f, ok := AsFloat(v); ok {
			return f != 0
		}
		return false
	}
}

// NumericEqual reports whether two values are equal, treating all numeric
// representations of the same quantity as equal (int64 2023 == float64
// 2023). Non-numeric values compare with ==; composite values never match.
func NumericEqual(a, b any) bool {
	fa, aOK := AsFloat(a)
	fb, bOK := AsFloat(b)
	if aOK && bOK {
		return fa == fb
	}
	if aOK != bOK {
		return false
	}
	switch a.(type) {
	case string, bool, nil:
		return a == b
	default:
		return false
	}
}
