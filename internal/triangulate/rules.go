package triangulate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/qnwis/qnwis/internal/query"
)

// SeverityWarn is the severity of every issue this layer produces. No rule
// here is fatal; fatal inconsistencies belong to the verifiers upstream.
const SeverityWarn = "warn"

// tolerance is the absolute slack allowed before a sum or recomputation
// counts as inconsistent. Source tables round to one decimal, so half a
// point of drift is expected.
const tolerance = 0.5

const (
	percentLow  = 0.0
	percentHigh = 100.0
	yoyLow      = -100.0
	yoyHigh     = 200.0
	dropAlert   = 3.0
)

// RuleIssue is one violation found by a rule.
type RuleIssue struct {
	Code     string   `json:"code"`
	Severity string   `json:"severity"`
	Detail   string   `json:"detail"`
	QueryIDs []string `json:"query_ids,omitempty"`
}

// PercentBounds flags values outside [0, 100] in any column whose key ends
// in _percent. Non-numeric cells are skipped. Keys are walked in sorted
// order so issue order is stable across runs.
func PercentBounds(rows []query.Row) []RuleIssue {
	var issues []RuleIssue
	for i, row := range rows {
		for _, key := range percentKeys(row) {
			v, ok := query.AsFloat(row[key])
			if !ok {
				continue
			}
			if v < percentLow || v > percentHigh {
				issues = append(issues, RuleIssue{
					Code:     "percent_bounds",
					Severity: SeverityWarn,
					Detail:   fmt.Sprintf("row %d: %s=%s outside [0,100]", i, key, formatNum(v)),
				})
			}
		}
	}
	return issues
}

// percentKeys lists a row's _percent-suffixed keys, sorted.
func percentKeys(row query.Row) []string {
	var keys []string
	for k := range row {
		if strings.HasSuffix(k, "_percent") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// SumToOne flags rows where male plus female drifts from total by more
// than the tolerance. A row missing any of the three values is skipped:
// absent data is not inconsistent data.
func SumToOne(rows []query.Row, maleKey, femaleKey, totalKey string) []RuleIssue {
	var issues []RuleIssue
	for i, row := range rows {
		male, okM := query.AsFloat(row[maleKey])
		female, okF := query.AsFloat(row[femaleKey])
		total, okT := query.AsFloat(row[totalKey])
		if !okM || !okF || !okT {
			continue
		}
		diff := male + female - total
		if abs(diff) > tolerance {
			issues = append(issues, RuleIssue{
				Code:     "sum_to_one",
				Severity: SeverityWarn,
				Detail: fmt.Sprintf("row %d: %s+%s=%s but %s=%s (diff %s)",
					i, maleKey, femaleKey, formatNum(male+female), totalKey, formatNum(total), formatNum(diff)),
			})
		}
	}
	return issues
}

// QatarizationConsistency recomputes the qatarization percentage from its
// own numerator and denominator and flags rows where the reported figure
// drifts by more than the tolerance. A zero denominator skips the row.
func QatarizationConsistency(rows []query.Row, qatarisKey, nonQatarisKey, pctKey string) []RuleIssue {
	var issues []RuleIssue
	for i, row := range rows {
		qataris, okQ := query.AsFloat(row[qatarisKey])
		nonQataris, okN := query.AsFloat(row[nonQatarisKey])
		reported, okP := query.AsFloat(row[pctKey])
		if !okQ || !okN || !okP {
			continue
		}
		denom := qataris + nonQataris
		if denom == 0 {
			continue
		}
		expected := 100 * qataris / denom
		if abs(expected-reported) > tolerance {
			issues = append(issues, RuleIssue{
				Code:     "qatarization_consistency",
				Severity: SeverityWarn,
				Detail: fmt.Sprintf("row %d: recomputed %s=%s but reported %s",
					i, pctKey, formatNum(expected), formatNum(reported)),
			})
		}
	}
	return issues
}

// YoYBounds flags year-over-year changes outside [-100, 200]. A drop below
// -100 percent is arithmetically impossible for a headcount; growth above
// 200 percent in one year is treated as a data defect until shown
// otherwise.
func YoYBounds(rows []query.Row, field string) []RuleIssue {
	var issues []RuleIssue
	for i, row := range rows {
		v, ok := query.AsFloat(row[field])
		if !ok {
			continue
		}
		if v < yoyLow || v > yoyHigh {
			issues = append(issues, RuleIssue{
				Code:     "yoy_bounds",
				Severity: SeverityWarn,
				Detail:   fmt.Sprintf("row %d: %s=%s outside [-100,200]", i, field, formatNum(v)),
			})
		}
	}
	return issues
}

// EWIVsGrowth joins early-warning rows with growth rows on sectorKey and
// flags sectors reporting an employment drop above 3 points while the
// growth series shows positive year-over-year change. The growth series
// contributes its last non-nil value per sector, which after an ascending
// yoy sort is the most recent year.
func EWIVsGrowth(ewiRows, growthRows []query.Row, sectorKey, dropKey, yoyKey string) []RuleIssue {
	latest := make(map[string]float64)
	for _, row := range growthRows {
		sector, ok := row[sectorKey].(string)
		if !ok {
			continue
		}
		if yoy, ok := query.AsFloat(row[yoyKey]); ok {
			latest[sector] = yoy
		}
	}

	var issues []RuleIssue
	for _, row := range ewiRows {
		sector, ok := row[sectorKey].(string)
		if !ok {
			continue
		}
		drop, ok := query.AsFloat(row[dropKey])
		if !ok {
			continue
		}
		yoy, ok := latest[sector]
		if !ok {
			continue
		}
		if drop > dropAlert && yoy > 0 {
			issues = append(issues, RuleIssue{
				Code:     "ewi_vs_growth",
				Severity: SeverityWarn,
				Detail: fmt.Sprintf("sector %s: %s=%s while %s=%s",
					sector, dropKey, formatNum(drop), yoyKey, formatNum(yoy)),
			})
		}
	}
	return issues
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
