// Package registry loads query specs from CUE files.
//
// One CUE document per query, walked recursively under a root directory:
//
//	id:     "employment_by_sector"
//	title:  "Employment by sector"
//	source: "csv"
//	params: file: "employment.csv"
//	expected_unit: "count"
//	constraints: freshness_sla_days: 120
//	postprocess: [
//		{name: "filter_equals", params: where: year: 2023},
//	]
//
// Loading is fail-fast and validating: unknown sources, unknown transform
// names, bad units, and malformed constraints are load-time errors with
// CUE source positions, not runtime surprises. A loaded Registry is
// immutable; callers clone specs before overriding.
package registry
