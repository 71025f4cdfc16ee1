package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/qnwis/qnwis/internal/query"
)

const defaultQatarBaseURL = "https://www.data.gov.qa/api/3/action"

// QatarAPIConnector fetches records from Qatar's open-data portal, a CKAN
// datastore.
type QatarAPIConnector struct {
	baseURL string
	client  *http.Client
}

// QatarAPIOption configures a QatarAPIConnector.
type QatarAPIOption func(*QatarAPIConnector)

// WithQatarBaseURL points the connector at a different CKAN action root.
// Tests point it at an httptest server.
func WithQatarBaseURL(u string) QatarAPIOption {
	return func(c *QatarAPIConnector) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithQatarClient replaces the HTTP client.
func WithQatarClient(client *http.Client) QatarAPIOption {
	return func(c *QatarAPIConnector) { c.client = client }
}

// NewQatarAPI builds a connector against the public portal.
func NewQatarAPI(opts ...QatarAPIOption) *QatarAPIConnector {
	c := &QatarAPIConnector{
		baseURL: defaultQatarBaseURL,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ckanResponse is the datastore_search envelope.
type ckanResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Records []map[string]any `json:"records"`
		Total   int              `json:"total"`
	} `json:"result"`
}

// Fetch runs a datastore_search against one resource.
//
// Params: resource_id (required), filters (field -> value map, sent as
// JSON), q (full-text search), limit, unit, timeout_s. Records come back
// as rows unchanged; the portal carries no as-of date, so freshness is
// derived from row contents downstream.
func (c *QatarAPIConnector) Fetch(ctx context.Context, spec *query.Spec) (*query.Result, error) {
	resourceID, err := requiredString(spec, "resource_id")
	if err != nil {
		return nil, err
	}
	filters, err := optionalMap(spec, "filters")
	if err != nil {
		return nil, err
	}
	q, err := optionalString(spec, "q")
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
	timeout, err := timeoutFrom(spec)
	if err != nil {
		return nil, err
	}

	vals := url.Values{}
	vals.Set("resource_id", resourceID)
	if len(filters) > 0 {
		encoded, err := json.Marshal(filters)
		if err != nil {
			return nil, &ParamError{Source: spec.Source, Param: "filters", Reason: "not JSON-encodable"}
		}
		vals.Set("filters", string(encoded))
	}
	if q != "" {
		vals.Set("q", q)
	}
	if hasLimit {
		vals.Set("limit", strconv.FormatInt(limit, 10))
	}
	rawURL := c.baseURL + "/datastore_search?" + vals.Encode()

	var resp ckanResponse
	if err := fetchJSON(ctx, c.client, query.SourceQatarAPI, rawURL, timeout, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &UnavailableError{Source: query.SourceQatarAPI, Reason: "API reported failure"}
	}

	rows := make([]query.Row, 0, len(resp.Result.Records))
	for _, rec := range resp.Result.Records {
		rows = append(rows, query.Row(rec))
	}

	fields := recordColumns(rows)
	unit, err := resolveUnit(spec, fields)
	if err != nil {
		return nil, err
	}

	result := &query.Result{
		QueryID: spec.ID,
		Source:  query.SourceQatarAPI,
		Unit:    unit,
		Rows:    rows,
		Provenance: query.Provenance{
			Source:    query.SourceQatarAPI,
			DatasetID: resourceID,
			Locator:   rawURL,
			Fields:    fields,
		},
	}
	if len(rows) == 0 {
		result.Warnings = append(result.Warnings, WarnEmptyResult)
	}
	return result, nil
}

// recordColumns lists the first record's field names, sorted, for unit
// inference.
func recordColumns(rows []query.Row) []string {
	if len(rows) == 0 {
		return nil
	}
	columns := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return columns
}
