package connector

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/qnwis/qnwis/internal/query"
)

// SQLConnector runs read-only queries against a SQLite database. The
// handle is provided by the caller, opened with the house pragmas; this
// connector never writes.
type SQLConnector struct {
	db *sql.DB
}

// NewSQL builds a connector over db.
func NewSQL(db *sql.DB) *SQLConnector {
	return &SQLConnector{db: db}
}

// Fetch runs the spec's SELECT and scans every row.
//
// Params: sql (required, a single SELECT or WITH statement), args
// (positional placeholders), dataset (provenance id), unit, asof_date.
// Row order is whatever the statement's ORDER BY produces; the connector
// appends no ordering of its own.
func (c *SQLConnector) Fetch(ctx context.Context, spec *query.Spec) (*query.Result, error) {
	text, err := requiredString(spec, "sql")
	if err != nil {
		return nil, err
	}
	if err := checkSelectOnly(spec, text); err != nil {
		return nil, err
	}
	args, err := optionalList(spec, "args")
	if err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, text, args...)
	if err != nil {
		return nil, &UnavailableError{Source: query.SourceSQL, Reason: "query failed", Err: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &UnavailableError{Source: query.SourceSQL, Reason: "reading columns failed", Err: err}
	}

	out := []query.Row{}
	for rows.Next() {
		cells := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &UnavailableError{Source: query.SourceSQL, Reason: "scan failed", Err: err}
		}
		row := make(query.Row, len(columns))
		for i, name := range columns {
			row[name] = normalizeSQLValue(cells[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &UnavailableError{Source: query.SourceSQL, Reason: "row iteration failed", Err: err}
	}

	unit, err := resolveUnit(spec, columns)
	if err != nil {
		return nil, err
	}
	dataset, err := optionalString(spec, "dataset")
	if err != nil {
		return nil, err
	}
	asof, err := optionalString(spec, "asof_date")
	if err != nil {
		return nil, err
	}

	result := &query.Result{
		QueryID: spec.ID,
		Source:  query.SourceSQL,
		Unit:    unit,
		Rows:    out,
		Provenance: query.Provenance{
			Source:    query.SourceSQL,
			DatasetID: dataset,
			Fields:    columns,
		},
		Freshness: query.Freshness{AsOfDate: asof},
	}
	if len(out) == 0 {
		result.Warnings = append(result.Warnings, WarnEmptyResult)
	}
	return result, nil
}

// checkSelectOnly rejects anything but a single SELECT (or WITH ... SELECT)
// statement. The registry already vets spec files, but overrides arrive
// from callers, so the connector enforces read-only on its own.
func checkSelectOnly(spec *query.Spec, text string) error {
	trimmed := strings.TrimSpace(text)
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return &ParamError{Source: spec.Source, Param: "sql", Reason: "only SELECT statements are allowed"}
	}
	if strings.Contains(strings.TrimRight(trimmed, "; \t\r\n"), ";") {
		return &ParamError{Source: spec.Source, Param: "sql", Reason: "multiple statements are not allowed"}
	}
	return nil
}

// normalizeSQLValue maps driver types onto the row value vocabulary:
// []byte to string, timestamps to their date-time text.
func normalizeSQLValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.Format("2006-01-02 15:04:05")
	default:
		return v
	}
}
