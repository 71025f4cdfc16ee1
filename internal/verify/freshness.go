package verify

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/qnwis/qnwis/internal/query"
)

// Freshness warning sentinels.
const (
	WarnInvalidSLA = "freshness_invalid_sla"
	WarnParseError = "freshness_parse_error"
	WarnUnknown    = "freshness_unknown"
)

var bareYearRe = regexp.MustCompile(`^\d{4}$`)

// dateLayouts are tried in order when parsing as-of values and row cells.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2006-01",
}

// Freshness checks the result's data age against the spec's
// freshness_sla_days constraint. It fills Freshness.SLADays and AgeDays on
// the result and returns warnings; no constraint means no warnings and no
// mutation.
//
// The as-of date derives with this precedence:
//  1. the explicit Freshness.AsOfDate, unless empty or the "auto"/"api"
//     sentinel; an unparsable explicit value is a parse error, not a
//     fallthrough; a bare year means Dec 31 of that year
//  2. the first parsable date-like cell, scanning rows in order and each
//     row's keys in sorted order
//  3. the maximum numeric year cell in [1000, 9999], normalized to Dec 31
//
// No derivable as-of yields the freshness_unknown warning.
func Freshness(spec *query.Spec, result *query.Result, now time.Time) []string {
	raw, present := spec.Constraints["freshness_sla_days"]
	if !present {
		return nil
	}
	sla, ok := query.AsInt(raw)
	if !ok || sla < 0 {
		return []string{WarnInvalidSLA}
	}
	slaDays := int(sla)
	result.Freshness.SLADays = &slaDays

	asof, warn := deriveAsOf(result)
	if warn != "" {
		return []string{warn}
	}

	age := int(math.Floor(now.Sub(asof).Hours() / 24))
	result.Freshness.AgeDays = &age

	if age > slaDays {
		return []string{fmt.Sprintf("stale_data:%d>%d", age, slaDays)}
	}
	return nil
}

// IsFreshnessWarning reports whether w was produced by the freshness
// verifier. The engine strips and recomputes these on cache hits, since
// data age moves with the clock while the cached payload does not.
func IsFreshnessWarning(w string) bool {
	return strings.HasPrefix(w, "freshness_") || strings.HasPrefix(w, "stale_data:")
}

// deriveAsOf resolves the result's as-of date, returning either a time or a
// warning sentinel.
func deriveAsOf(result *query.Result) (time.Time, string) {
	explicit := strings.TrimSpace(result.Freshness.AsOfDate)
	if explicit != "" && !isAutoSentinel(explicit) {
		t, ok := ParseDate(explicit)
		if !ok {
			return time.Time{}, WarnParseError
		}
		return t, ""
	}

	if t, ok := firstRowDate(result.Rows); ok {
		return t, ""
	}
	if t, ok := maxYearDate(result.Rows); ok {
		return t, ""
	}
	return time.Time{}, WarnUnknown
}

// isAutoSentinel reports the "derive it yourself" markers sources use when
// they have no real as-of date.
func isAutoSentinel(s string) bool {
	switch strings.ToLower(s) {
	case "auto", "api":
		return true
	}
	return false
}

// ParseDate parses the date shapes sources emit. A bare four-digit year
// parses as Dec 31 of that year.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if bareYearRe.MatchString(s) {
		year, err := strconv.Atoi(s)
		if err != nil {
			return time.Time{}, false
		}
		return yearEnd(year), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// firstRowDate scans rows in order, keys sorted, for the first parsable
// date-like string cell.
func firstRowDate(rows []query.Row) (time.Time, bool) {
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			if isDateKey(k) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			s, ok := row[k].(string)
			if !ok {
				continue
			}
			if t, ok := ParseDate(s); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// isDateKey reports whether a column name denotes a date.
func isDateKey(k string) bool {
	lower := strings.ToLower(k)
	return lower == "date" ||
		strings.HasSuffix(lower, "_date") ||
		strings.HasPrefix(lower, "as_of") ||
		strings.HasPrefix(lower, "asof")
}

// maxYearDate finds the largest plausible year cell across all rows and
// normalizes it to year end. Accepts numeric cells and digit strings.
func maxYearDate(rows []query.Row) (time.Time, bool) {
	best := 0
	for _, row := range rows {
		v, ok := row["year"]
		if !ok {
			continue
		}
		year, ok := cellYear(v)
		if !ok {
			continue
		}
		if year > best {
			best = year
		}
	}
	if best == 0 {
		return time.Time{}, false
	}
	return yearEnd(best), true
}

// cellYear extracts a year in [1000, 9999] from a numeric or digit-string
// cell.
func cellYear(v any) (int, bool) {
	if s, ok := v.(string); ok {
		if !bareYearRe.MatchString(strings.TrimSpace(s)) {
			return 0, false
		}
		year, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, false
		}
		if year < 1000 || year > 9999 {
			return 0, false
		}
		return year, true
	}
	f, ok := query.AsFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	year := int(f)
	if year < 1000 || year > 9999 {
		return 0, false
	}
	return year, true
}

func yearEnd(year int) time.Time {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
}
