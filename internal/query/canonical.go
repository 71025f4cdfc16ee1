package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces the canonical JSON used for cache-key hashing.
// CRITICAL: this is the ONLY serialization that may feed content-addressed
// keys. Standard json.Marshal is not a substitute: key ordering, string
// normalization, and number formatting all differ.
//
// Rules:
//  1. Object keys sorted bytewise after NFC normalization
//  2. Strings NFC normalized, no HTML escaping (< > & stay literal)
//  3. Arrays keep caller order; Set elements sort by canonical form
//  4. Integral floats serialize as integers (10.0 and 10 hash identically)
//  5. NaN and infinities are errors; null is allowed
//  6. No incidental whitespace
func MarshalCanonical(v any) ([]byte, error) {
	return marshalCanonical(v)
}

func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case string:
		return marshalCanonicalString(val), nil
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case int:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case int32:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case int64:
		return strconv.AppendInt(nil, val, 10), nil
	case uint64:
		return strconv.AppendUint(nil, val, 10), nil
	case float32:
		return marshalCanonicalFloat(float64(val))
	case float64:
		return marshalCanonicalFloat(val)
	case json.Number:
		return marshalCanonicalNumber(val)
	case Set:
		return marshalCanonicalSet(val)
	case []any:
		return marshalCanonicalArray(val)
	case []string:
		arr := make([]any, len(val))
		for i, s := range val {
			arr[i] = s
		}
		return marshalCanonicalArray(arr)
	case Row:
		return marshalCanonicalObject(map[string]any(val))
	case map[string]any:
		return marshalCanonicalObject(val)
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// marshalCanonicalString escapes s per canonical JSON rules with NFC
// normalization at the serialization boundary. Only quote, backslash, and
// control characters below U+0020 are escaped; everything else, including
// < > & and non-ASCII, passes through literally.
func marshalCanonicalString(s string) []byte {
	normalized := norm.NFC.String(s)

	buf := make([]byte, 0, len(normalized)+2)
	buf = append(buf, '"')
	for _, b := range []byte(normalized) {
		switch b {
		case '"':
			buf = append(buf, '\\', '"')
		case '\\':
			buf = append(buf, '\\', '\\')
		case '\b':
			buf = append(buf, '\\', 'b')
		case '\f':
			buf = append(buf, '\\', 'f')
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\r':
			buf = append(buf, '\\', 'r')
		case '\t':
			buf = append(buf, '\\', 't')
		default:
			if b < 0x20 {
				buf = append(buf, []byte(fmt.Sprintf(`\u%04x`, b))...)
			} else {
				buf = append(buf, b)
			}
		}
	}
	buf = append(buf, '"')
	return buf
}

// marshalCanonicalFloat emits a deterministic number literal. Integral
// values within the float64 exact-integer range serialize without a
// fraction so 10.0 and 10 hash identically; everything else uses the
// shortest round-trip form.
func marshalCanonicalFloat(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite float is forbidden in canonical JSON: %v", f)
	}
	const maxExactInt = float64(1 << 53)
	if f == math.Trunc(f) && math.Abs(f) < maxExactInt {
		return strconv.AppendInt(nil, int64(f), 10), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// marshalCanonicalNumber routes a json.Number through the integer path when
// it is an exact integer, the float path otherwise.
func marshalCanonicalNumber(n json.Number) ([]byte, error) {
	if i, err := n.Int64(); err == nil {
		return strconv.AppendInt(nil, i, 10), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("malformed number %q: %w", string(n), err)
	}
	return marshalCanonicalFloat(f)
}

func marshalCanonicalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := marshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// marshalCanonicalSet serializes the members, sorts the serialized forms
// bytewise, and emits them as a JSON array. Member order in the Set value
// therefore never reaches the hash.
func marshalCanonicalSet(s Set) ([]byte, error) {
	forms := make([]string, len(s))
	for i, elem := range s {
		elemBytes, err := marshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("set[%d]: %w", i, err)
		}
		forms[i] = string(elemBytes)
	}
	sort.Strings(forms)

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, form := range forms {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(form)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// marshalCanonicalObject emits keys in bytewise order after NFC
// normalization. Map iteration order never reaches the hash.
func marshalCanonicalObject(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	byNormalized := make(map[string]string, len(obj))
	for k := range obj {
		nk := norm.NFC.String(k)
		if prev, dup := byNormalized[nk]; dup {
			return nil, fmt.Errorf("keys %q and %q normalize to the same canonical key", prev, k)
		}
		byNormalized[nk] = k
		keys = append(keys, nk)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, nk := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(marshalCanonicalString(nk))
		buf.WriteByte(':')

		valBytes, err := marshalCanonical(obj[byNormalized[nk]])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", nk, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
