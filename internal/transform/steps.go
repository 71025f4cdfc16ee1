package transform

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/qnwis/qnwis/internal/query"
)

// filterEquals keeps rows where every where-key equals the given value.
// Numeric cells compare by value, so int64 2023 matches float64 2023.
// An empty where map keeps everything.
func filterEquals(rows []query.Row, params map[string]any) ([]query.Row, error) {
	where, err := mapParam(params, "where")
	if err != nil {
		return nil, err
	}
	if len(where) == 0 {
		return rows, nil
	}

	out := make([]query.Row, 0, len(rows))
	for _, row := range rows {
		matched := true
		for k, want := range where {
			if !query.NumericEqual(row[k], want) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, row)
		}
	}
	return out, nil
}

// topN stable-sorts by sort_key (descending unless descending is false) and
// keeps the first n rows. n <= 0 yields an empty result, not an error. Rows
// missing the key sort last in either direction; ties keep input order.
func topN(rows []query.Row, params map[string]any) ([]query.Row, error) {
	sortKey, err := stringParam(params, "sort_key")
	if err != nil {
		return nil, err
	}
	nVal, ok := params["n"]
	if !ok {
		return nil, fmt.Errorf("missing required param %q", "n")
	}
	n, ok := query.AsInt(nVal)
	if !ok {
		return nil, fmt.Errorf("param %q must be an integer, got %T", "n", nVal)
	}
	if n <= 0 {
		return []query.Row{}, nil
	}
	descending, err := optionalBool(params, "descending", true)
	if err != nil {
		return nil, err
	}

	sorted := sortRows(rows, []string{sortKey}, !descending)
	if int64(len(sorted)) > n {
		sorted = sorted[:n]
	}
	return sorted, nil
}

// yoy sorts ascending by sort_keys (default ["year"]) and writes the
// percentage change from the previous row into out_key (default
// "yoy_percent"), two decimals. The first row, rows after a non-numeric
// value, and rows following a zero all get nil rather than an error. Rows
// must already be one cohort; yoy does no grouping of its own.
func yoy(rows []query.Row, params map[string]any) ([]query.Row, error) {
	key, err := stringParam(params, "key")
	if err != nil {
		return nil, err
	}
	sortKeys, err := optionalStrings(params, "sort_keys", []string{"year"})
	if err != nil {
		return nil, err
	}
	outCol, err := optionalString(params, "out_key", "yoy_percent")
	if err != nil {
		return nil, err
	}

	sorted := sortRows(rows, sortKeys, true)
	out := make([]query.Row, len(sorted))
	var prev *float64
	for i, row := range sorted {
		clone := row.Clone()
		curr, currOK := query.AsFloat(row[key])
		if i == 0 || prev == nil || !currOK || *prev == 0 {
			clone[outCol] = nil
		} else {
			clone[outCol] = round2((curr - *prev) / *prev * 100)
		}
		if currOK {
			v := curr
			prev = &v
		} else {
			prev = nil
		}
		out[i] = clone
	}
	return out, nil
}

// rollingAvg sorts ascending by sort_keys (default ["year"]) and adds
// <key>_rolling_<window>: the trailing mean over the last window rows, two
// decimals. Rows before the window first fills, and windows holding a
// non-numeric value, get nil.
func rollingAvg(rows []query.Row, params map[string]any) ([]query.Row, error) {
	key, err := stringParam(params, "key")
	if err != nil {
		return nil, err
	}
	sortKeys, err := optionalStrings(params, "sort_keys", []string{"year"})
	if err != nil {
		return nil, err
	}
	wVal, ok := params["window"]
	if !ok {
		return nil, fmt.Errorf("missing required param %q", "window")
	}
	window, ok := query.AsInt(wVal)
	if !ok {
		return nil, fmt.Errorf("param %q must be an integer, got %T", "window", wVal)
	}
	if window <= 0 {
		return nil, fmt.Errorf("param %q must be positive, got %d", "window", window)
	}
	outCol := fmt.Sprintf("%s_rolling_%d", key, window)

	sorted := sortRows(rows, sortKeys, true)
	out := make([]query.Row, len(sorted))
	for i, row := range sorted {
		clone := row.Clone()
		clone[outCol] = nil
		if i >= int(window)-1 {
			var sum float64
			full := true
			for j := i - int(window) + 1; j <= i; j++ {
				v, ok := query.AsFloat(sorted[j][key])
				if !ok {
					full = false
					break
				}
				sum += v
			}
			if full {
				clone[outCol] = round2(sum / float64(window))
			}
		}
		out[i] = clone
	}
	return out, nil
}

// shareOfTotal groups rows by group_keys (absent or empty means one global
// group) and writes each row's percentage share of its group's value_key sum
// into out_key (default "share_percent"). Rows with a non-numeric value, and
// whole groups whose sum is not positive, get nil shares. Shares are not
// rounded, so a group's shares sum back to its full 100.
func shareOfTotal(rows []query.Row, params map[string]any) ([]query.Row, error) {
	valueKey, err := stringParam(params, "value_key")
	if err != nil {
		return nil, err
	}
	groupKeys, err := optionalStrings(params, "group_keys", nil)
	if err != nil {
		return nil, err
	}
	outCol, err := optionalString(params, "out_key", "share_percent")
	if err != nil {
		return nil, err
	}

	sums := make(map[string]float64)
	for _, row := range rows {
		if v, ok := query.AsFloat(row[valueKey]); ok {
			sums[groupID(row, groupKeys)] += v
		}
	}

	out := make([]query.Row, len(rows))
	for i, row := range rows {
		clone := row.Clone()
		v, ok := query.AsFloat(row[valueKey])
		if sum := sums[groupID(row, groupKeys)]; !ok || sum <= 0 {
			clone[outCol] = nil
		} else {
			clone[outCol] = 100 * v / sum
		}
		out[i] = clone
	}
	return out, nil
}

// groupID builds a composite grouping key from the group_keys cells. Numeric
// cells normalize through float64 so int64 and float64 forms of the same
// value land in one group.
func groupID(row query.Row, keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	var b strings.Builder
	for _, k := range keys {
		v := row[k]
		if f, ok := query.AsFloat(v); ok {
			b.WriteString("n:")
			b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		} else {
			fmt.Fprintf(&b, "%T:%v", v, v)
		}
		b.WriteByte(0x1f)
	}
	return b.String()
}

// renameColumns renames keys per the mapping {old: new}. Olds absent from a
// row are ignored. Row keys are walked in sorted order so colliding renames
// resolve deterministically (the last sorted old wins).
func renameColumns(rows []query.Row, params map[string]any) ([]query.Row, error) {
	rawMapping, err := mapParam(params, "mapping")
	if err != nil {
		return nil, err
	}
	mapping := make(map[string]string, len(rawMapping))
	for old, v := range rawMapping {
		s, ok := v.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("mapping value for %q must be a non-empty string, got %T", old, v)
		}
		mapping[old] = s
	}

	out := make([]query.Row, len(rows))
	for i, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		renamed := make(query.Row, len(row))
		for _, k := range keys {
			if newName, ok := mapping[k]; ok {
				renamed[newName] = row[k]
			} else {
				renamed[k] = row[k]
			}
		}
		out[i] = renamed
	}
	return out, nil
}

// selectColumns projects each row to exactly the listed columns. Columns
// absent from a row come out nil, so every row carries the same key set.
func selectColumns(rows []query.Row, params map[string]any) ([]query.Row, error) {
	columns, err := stringsParam(params, "columns")
	if err != nil {
		return nil, err
	}

	out := make([]query.Row, len(rows))
	for i, row := range rows {
		projected := make(query.Row, len(columns))
		for _, col := range columns {
			projected[col] = row[col]
		}
		out[i] = projected
	}
	return out, nil
}

// toPercent multiplies each listed numeric column by scale (default 100).
// Non-numeric and missing cells pass through unchanged.
func toPercent(rows []query.Row, params map[string]any) ([]query.Row, error) {
	columns, err := stringsParam(params, "columns")
	if err != nil {
		return nil, err
	}
	scale := 100.0
	if v, ok := params["scale"]; ok {
		f, ok := query.AsFloat(v)
		if !ok {
			return nil, fmt.Errorf("param %q must be a number, got %T", "scale", v)
		}
		scale = f
	}

	out := make([]query.Row, len(rows))
	for i, row := range rows {
		clone := row.Clone()
		for _, col := range columns {
			if v, ok := query.AsFloat(row[col]); ok {
				clone[col] = v * scale
			}
		}
		out[i] = clone
	}
	return out, nil
}

// round2 rounds to two decimals, half away from zero.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// sortRows returns a stable-sorted copy of rows ordered by keys. Rows with
// a nil or missing cell for the deciding key sort last regardless of
// direction. Mixed-type cells order numbers before strings before bools.
func sortRows(rows []query.Row, keys []string, ascending bool) []query.Row {
	out := make([]query.Row, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		for _, k := range keys {
			a, b := out[i][k], out[j][k]
			aNil, bNil := a == nil, b == nil
			if aNil || bNil {
				if aNil == bNil {
					continue
				}
				return bNil // non-nil before nil in either direction
			}
			c := compareCells(a, b)
			if c == 0 {
				continue
			}
			if ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return out
}

// compareCells orders two non-nil cells: -1, 0, or 1.
func compareCells(a, b any) int {
	ra, rb := cellRank(a), cellRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 0:
		fa, _ := query.AsFloat(a)
		fb, _ := query.AsFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 1:
		return strings.Compare(a.(string), b.(string))
	default:
		ba, bb := a.(bool), b.(bool)
		switch {
		case !ba && bb:
			return -1
		case ba && !bb:
			return 1
		}
		return 0
	}
}

// cellRank assigns a type rank for mixed-type ordering: numbers, then
// strings, then bools, then anything else.
func cellRank(v any) int {
	if _, ok := query.AsFloat(v); ok {
		return 0
	}
	switch v.(type) {
	case string:
		return 1
	case bool:
		return 2
	default:
		return 3
	}
}

// stringParam extracts a required non-empty string param.
func stringParam(params map[string]any, name string) (string, error) {
	v, ok := params[name]
	if !ok {
		return "", fmt.Errorf("missing required param %q", name)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("param %q must be a non-empty string, got %T", name, v)
	}
	return s, nil
}

// optionalString is stringParam with a default for absent params.
func optionalString(params map[string]any, name, def string) (string, error) {
	if _, ok := params[name]; !ok {
		return def, nil
	}
	return stringParam(params, name)
}

// optionalBool extracts a bool param, returning def when absent.
func optionalBool(params map[string]any, name string, def bool) (bool, error) {
	v, ok := params[name]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("param %q must be a bool, got %T", name, v)
	}
	return b, nil
}

// mapParam extracts a required map param.
func mapParam(params map[string]any, name string) (map[string]any, error) {
	v, ok := params[name]
	if !ok {
		return nil, fmt.Errorf("missing required param %q", name)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("param %q must be a map, got %T", name, v)
	}
	return m, nil
}

// stringsParam extracts a required list-of-strings param. Accepts []string
// directly and []any holding only strings (the shape YAML and CUE decode
// produce).
func stringsParam(params map[string]any, name string) ([]string, error) {
	v, ok := params[name]
	if !ok {
		return nil, fmt.Errorf("missing required param %q", name)
	}
	return coerceStrings(name, v)
}

// optionalStrings is stringsParam with a default for absent params.
func optionalStrings(params map[string]any, name string, def []string) ([]string, error) {
	v, ok := params[name]
	if !ok {
		return def, nil
	}
	return coerceStrings(name, v)
}

func coerceStrings(name string, v any) ([]string, error) {
	switch val := v.(type) {
	case []string:
		return val, nil
	case []any:
		out := make([]string, len(val))
		for i, elem := range val {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("param %q element %d must be a string, got %T", name, i, elem)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("param %q must be a list of strings, got %T", name, v)
	}
}
