package triangulate

import "github.com/qnwis/qnwis/internal/query"

// Check binds registry query ids to one rule evaluation. The battery is
// fixed: checks name well-known platform queries, and a registry that
// lacks one simply skips that check.
type Check struct {
	ID       string
	QueryIDs []string
	Eval     func(results map[string]*query.Result) []RuleIssue
}

// Battery returns the fixed set of consistency checks in execution order.
func Battery() []Check {
	return []Check{
		{
			ID:       "gender_split_sum",
			QueryIDs: []string{"employment_by_gender_year"},
			Eval: func(results map[string]*query.Result) []RuleIssue {
				return tagged(
					SumToOne(results["employment_by_gender_year"].Rows, "male", "female", "total"),
					"employment_by_gender_year",
				)
			},
		},
		{
			ID:       "qatarization_consistency",
			QueryIDs: []string{"qatarization_by_sector"},
			Eval: func(results map[string]*query.Result) []RuleIssue {
				return tagged(
					QatarizationConsistency(results["qatarization_by_sector"].Rows,
						"qataris", "non_qataris", "qatarization_percent"),
					"qatarization_by_sector",
				)
			},
		},
		{
			ID:       "percent_bounds",
			QueryIDs: []string{"qatarization_by_sector"},
			Eval: func(results map[string]*query.Result) []RuleIssue {
				return tagged(
					PercentBounds(results["qatarization_by_sector"].Rows),
					"qatarization_by_sector",
				)
			},
		},
		{
			ID:       "yoy_bounds",
			QueryIDs: []string{"sector_employment_yoy"},
			Eval: func(results map[string]*query.Result) []RuleIssue {
				return tagged(
					YoYBounds(results["sector_employment_yoy"].Rows, "yoy_percent"),
					"sector_employment_yoy",
				)
			},
		},
		{
			ID:       "ewi_vs_growth",
			QueryIDs: []string{"ewi_sector_alerts", "sector_employment_yoy"},
			Eval: func(results map[string]*query.Result) []RuleIssue {
				return tagged(
					EWIVsGrowth(
						results["ewi_sector_alerts"].Rows,
						results["sector_employment_yoy"].Rows,
						"sector", "drop_pct", "yoy_percent",
					),
					"ewi_sector_alerts", "sector_employment_yoy",
				)
			},
		},
	}
}

// tagged stamps the governing query ids onto each issue.
func tagged(issues []RuleIssue, queryIDs ...string) []RuleIssue {
	for i := range issues {
		issues[i].QueryIDs = queryIDs
	}
	return issues
}
