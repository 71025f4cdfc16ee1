// Package store opens SQLite source databases for query serving.
//
// Every handle it returns is read-only. The sql connector never writes,
// and opening the file with mode=ro plus query_only makes that a property
// of the session rather than a convention: a stray statement fails at the
// driver instead of mutating a source of record.
package store
