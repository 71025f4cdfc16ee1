// Package connector fetches raw tabular results from the four source
// families: local CSV files, a read-only SQLite database, the World Bank
// indicators API, and Qatar's CKAN open-data portal.
//
// Connectors never post-process. They coerce cells into Go values, stamp
// provenance and any source-supplied as-of date, and hand the result to
// the engine. Zero-match policy is source-specific and deliberate:
// file-backed queries fail hard with *NoRowsError, while database- and
// API-backed queries return an empty result carrying the empty_result
// warning.
package connector
