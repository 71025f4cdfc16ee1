// Package harness runs declarative conformance scenarios against the query
// engine.
//
// A scenario is a YAML document naming a spec directory, a CSV data root, a
// pinned clock, and a sequence of query steps with expectations: unit, row
// counts, row subsets, warning substrings, and whether the step was served
// from cache. Every scenario runs against a fresh in-memory cache backend,
// so cache counters always start at zero and expectations are absolute.
//
// Scenarios marked golden additionally snapshot their outcome as canonical
// JSON and compare it against a checked-in golden file, which pins the full
// result shape (rows, units, cache paths, counters) across refactors.
package harness
