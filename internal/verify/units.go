// Package verify holds the numeric and freshness verifiers that annotate
// query results with warnings. Verifiers never fail a query: every finding
// is a warning string appended to the result, and callers decide what to do
// with them.
package verify

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/qnwis/qnwis/internal/query"
)

// sumTolerance is the allowed deviation from 100 for sum_to_one checks.
const sumTolerance = 0.5

// Units checks the result's actual unit against the spec's expected unit
// and, when the sum_to_one constraint is set, that percent-keyed fields
// total 100 across all rows.
//
// An expected unit of "unknown" (or empty) suppresses the mismatch check.
func Units(spec *query.Spec, result *query.Result) []string {
	var warnings []string

	expected := spec.ExpectedUnit
	if expected != "" && expected != query.UnitUnknown && result.Unit != expected {
		warnings = append(warnings, fmt.Sprintf("unit_mismatch:%s!=%s", result.Unit, expected))
	}

	if query.Truthy(spec.Constraints["sum_to_one"]) {
		var total float64
		for _, row := range result.Rows {
			for k, v := range row {
				if !isPercentKey(k) {
					continue
				}
				if f, ok := query.AsFloat(v); ok {
					total += f
				}
			}
		}
		if math.Abs(total-100) > sumTolerance {
			warnings = append(warnings, "sum_to_one_violation:"+fmtNum(total))
		}
	}

	return warnings
}

// isPercentKey reports whether a column name denotes a percentage.
func isPercentKey(k string) bool {
	lower := strings.ToLower(k)
	return strings.HasSuffix(lower, "%") ||
		strings.HasSuffix(lower, "percent") ||
		strings.HasSuffix(lower, "pct")
}

// fmtNum renders a float for warning strings: two decimals, trailing zeros
// trimmed, so 99.0 prints as "99" and 99.456 as "99.46".
func fmtNum(v float64) string {
	rounded := math.Round(v*100) / 100
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}
