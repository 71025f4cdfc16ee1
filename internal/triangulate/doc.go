// Package triangulate cross-checks cached query results against each
// other: gender splits that should sum, qatarization rates that should
// match their own numerator and denominator, growth figures that should
// stay inside plausible bounds.
//
// Every rule violation is a warning; the battery never fails a run over
// inconsistent data. The one hard error is provenance: triangulation is
// defined only over CSV-backed results, and any other source aborts the
// run.
package triangulate
