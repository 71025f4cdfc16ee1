package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/qnwis/qnwis/internal/query"
)

const defaultWorldBankBaseURL = "https://api.worldbank.org/v2"

// defaultPerPage is large enough that annual indicator series fit in one
// page; paging is not followed.
const defaultPerPage = 2000

// WorldBankConnector fetches indicator observations from the World Bank
// API. Only the first response page is read.
type WorldBankConnector struct {
	baseURL string
	client  *http.Client
}

// WorldBankOption configures a WorldBankConnector.
type WorldBankOption func(*WorldBankConnector)

// WithWorldBankBaseURL points the connector at a different API root. Tests
// point it at an httptest server.
func WithWorldBankBaseURL(u string) WorldBankOption {
	return func(c *WorldBankConnector) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithWorldBankClient replaces the HTTP client.
func WithWorldBankClient(client *http.Client) WorldBankOption {
	return func(c *WorldBankConnector) { c.client = client }
}

// NewWorldBank builds a connector against the public API.
func NewWorldBank(opts ...WorldBankOption) *WorldBankConnector {
	c := &WorldBankConnector{
		baseURL: defaultWorldBankBaseURL,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wbMeta is the first element of the API's two-element response.
type wbMeta struct {
	Total       int    `json:"total"`
	LastUpdated string `json:"lastupdated"`
}

// wbObservation is one entry of the second element.
type wbObservation struct {
	Indicator wbRef    `json:"indicator"`
	Country   wbRef    `json:"country"`
	Date      string   `json:"date"`
	Value     *float64 `json:"value"`
}

type wbRef struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// Fetch retrieves one indicator series for one country.
//
// Params: indicator (required), country (default QA), start/end (year
// range), per_page, unit, timeout_s. Rows are {indicator, country, year,
// value} in response order, newest first; null observations keep their
// row with a nil value.
func (c *WorldBankConnector) Fetch(ctx context.Context, spec *query.Spec) (*query.Result, error) {
	indicator, err := requiredString(spec, "indicator")
	if err != nil {
		return nil, err
	}
	country, err := optionalString(spec, "country")
	if err != nil {
		return nil, err
	}
	if country == "" {
		country = "QA"
	}
	perPage, hasPerPage, err := optionalInt(spec, "per_page")
	if err != nil {
		return nil, err
	}
	if !hasPerPage {
		perPage = defaultPerPage
	}
	start, hasStart, err := optionalInt(spec, "start")
	if err != nil {
		return nil, err
	}
	end, hasEnd, err := optionalInt(spec, "end")
	if err != nil {
		return nil, err
	}
	timeout, err := timeoutFrom(spec)
	if err != nil {
		return nil, err
	}

	vals := url.Values{}
	vals.Set("format", "json")
	vals.Set("per_page", strconv.FormatInt(perPage, 10))
	if hasStart && hasEnd {
		vals.Set("date", fmt.Sprintf("%d:%d", start, end))
	}
	rawURL := fmt.Sprintf("%s/country/%s/indicator/%s?%s",
		c.baseURL, url.PathEscape(country), url.PathEscape(indicator), vals.Encode())

	var pages []json.RawMessage
	if err := fetchJSON(ctx, c.client, query.SourceWorldBank, rawURL, timeout, &pages); err != nil {
		return nil, err
	}
	if len(pages) < 2 {
		return nil, &UnavailableError{Source: query.SourceWorldBank, Reason: "malformed response"}
	}

	var meta wbMeta
	if err := json.Unmarshal(pages[0], &meta); err != nil {
		return nil, &UnavailableError{Source: query.SourceWorldBank, Reason: "malformed response", Err: err}
	}
	var observations []wbObservation
	if err := json.Unmarshal(pages[1], &observations); err != nil {
		return nil, &UnavailableError{Source: query.SourceWorldBank, Reason: "malformed response", Err: err}
	}

	rows := make([]query.Row, 0, len(observations))
	for _, obs := range observations {
		year, err := strconv.ParseInt(obs.Date, 10, 64)
		if err != nil {
			// Sub-annual series dates like 2023Q4 are out of scope.
			continue
		}
		row := query.Row{
			"indicator": obs.Indicator.ID,
			"country":   obs.Country.ID,
			"year":      year,
		}
		if obs.Value != nil {
			row["value"] = *obs.Value
		} else {
			row["value"] = nil
		}
		rows = append(rows, row)
	}

	unit, err := optionalString(spec, "unit")
	if err != nil {
		return nil, err
	}
	if unit == "" {
		// .ZS indicator codes are shares of something.
		if strings.HasSuffix(indicator, ".ZS") {
			unit = "percent"
		} else {
			unit = "count"
		}
	}

	result := &query.Result{
		QueryID: spec.ID,
		Source:  query.SourceWorldBank,
		Unit:    unit,
		Rows:    rows,
		Provenance: query.Provenance{
			Source:    query.SourceWorldBank,
			DatasetID: indicator,
			Locator:   rawURL,
			Fields:    []string{"indicator", "country", "year", "value"},
		},
		Freshness: query.Freshness{
			AsOfDate:  meta.LastUpdated,
			UpdatedAt: meta.LastUpdated,
		},
	}
	if len(rows) == 0 {
		result.Warnings = append(result.Warnings, WarnEmptyResult)
	}
	return result, nil
}
