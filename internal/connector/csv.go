package connector

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/qnwis/qnwis/internal/query"
)

// CSVConnector reads datasets from CSV files under a fixed data root. The
// first record is the header; every later record becomes one row keyed by
// the header names.
type CSVConnector struct {
	root string
}

// NewCSV builds a connector reading datasets under root.
func NewCSV(root string) *CSVConnector {
	return &CSVConnector{root: root}
}

// Fetch reads and filters one CSV dataset.
//
// Params: file (required, relative path), where (column -> value equality
// filter), columns (projection), limit (positive row cap), unit,
// asof_date.
func (c *CSVConnector) Fetch(_ context.Context, spec *query.Spec) (*query.Result, error) {
	file, err := requiredString(spec, "file")
	if err != nil {
		return nil, err
	}
	if filepath.IsAbs(file) || strings.Contains(file, "..") {
		return nil, &ParamError{Source: spec.Source, Param: "file", Reason: "must be a relative path inside the data root"}
	}

	where, err := optionalMap(spec, "where")
	if err != nil {
		return nil, err
	}
	columns, err := optionalStrings(spec, "columns")
	if err != nil {
		return nil, err
	}
	limit, hasLimit, err := optionalInt(spec, "limit")
	if err != nil {
		return nil, err
	}
	if hasLimit && limit <= 0 {
		return nil, &ParamError{Source: spec.Source, Param: "limit", Reason: "must be positive"}
	}

	path := filepath.Join(c.root, file)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Source: query.SourceCSV, Locator: path, Err: err}
		}
		return nil, &UnavailableError{Source: query.SourceCSV, Reason: "open failed", Err: err}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, &UnavailableError{Source: query.SourceCSV, Reason: "missing header row", Err: err}
	}

	var rows []query.Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &UnavailableError{Source: query.SourceCSV, Reason: "malformed csv", Err: err}
		}

		row := make(query.Row, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = coerceCell(record[i])
			}
		}
		if !matchesWhere(row, where) {
			continue
		}
		rows = append(rows, projectRow(row, columns))
		if hasLimit && int64(len(rows)) == limit {
			break
		}
	}

	if len(rows) == 0 {
		return nil, &NoRowsError{Dataset: file}
	}

	unit, err := resolveUnit(spec, header)
	if err != nil {
		return nil, err
	}
	asof, err := optionalString(spec, "asof_date")
	if err != nil {
		return nil, err
	}

	fields := header
	if len(columns) > 0 {
		fields = columns
	}

	return &query.Result{
		QueryID: spec.ID,
		Source:  query.SourceCSV,
		Unit:    unit,
		Rows:    rows,
		Provenance: query.Provenance{
			Source:    query.SourceCSV,
			DatasetID: filepath.Base(file),
			Locator:   path,
			Fields:    fields,
		},
		Freshness: query.Freshness{AsOfDate: asof},
	}, nil
}

// coerceCell turns a CSV cell into the value its text denotes: empty is
// nil, integers become int64, other numbers float64, true/false become
// bool, everything else stays a string.
func coerceCell(s string) any {
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// matchesWhere applies the equality filter. Numeric comparisons are
// cross-type, so where: {year: 2023} matches a cell coerced to int64.
func matchesWhere(row query.Row, where map[string]any) bool {
	for k, want := range where {
		got, ok := row[k]
		if !ok {
			return false
		}
		if !query.NumericEqual(got, want) {
			return false
		}
	}
	return true
}

// projectRow keeps only the named columns; an empty projection keeps all.
func projectRow(row query.Row, columns []string) query.Row {
	if len(columns) == 0 {
		return row
	}
	out := make(query.Row, len(columns))
	for _, c := range columns {
		if v, ok := row[c]; ok {
			out[c] = v
		}
	}
	return out
}
