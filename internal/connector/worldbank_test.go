package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qnwis/qnwis/internal/query"
)

const wbParticipationBody = `[
  {"page": 1, "pages": 1, "per_page": 2000, "total": 3, "lastupdated": "2024-01-28"},
  [
    {"indicator": {"id": "SL.TLF.CACT.ZS", "value": "Labor force participation rate"},
     "country": {"id": "QA", "value": "Qatar"}, "countryiso3code": "QAT",
     "date": "2023", "value": 88.7},
    {"indicator": {"id": "SL.TLF.CACT.ZS", "value": "Labor force participation rate"},
     "country": {"id": "QA", "value": "Qatar"}, "countryiso3code": "QAT",
     "date": "2022", "value": 88.1},
    {"indicator": {"id": "SL.TLF.CACT.ZS", "value": "Labor force participation rate"},
     "country": {"id": "QA", "value": "Qatar"}, "countryiso3code": "QAT",
     "date": "2021", "value": null}
  ]
]`

func wbSpec(params map[string]any) *query.Spec {
	return &query.Spec{
		ID:     "labor_participation",
		Source: query.SourceWorldBank,
		Params: params,
	}
}

func TestWorldBankConnector_FetchesIndicatorSeries(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Write([]byte(wbParticipationBody))
	}))
	t.Cleanup(srv.Close)

	c := NewWorldBank(WithWorldBankBaseURL(srv.URL))
	result, err := c.Fetch(context.Background(), wbSpec(map[string]any{
		"indicator": "SL.TLF.CACT.ZS",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/country/QA/indicator/SL.TLF.CACT.ZS", gotPath)
	assert.Equal(t, []string{"json"}, gotQuery["format"])
	assert.Equal(t, []string{"2000"}, gotQuery["per_page"])

	require.Len(t, result.Rows, 3)
	assert.Equal(t, query.Row{
		"indicator": "SL.TLF.CACT.ZS",
		"country":   "QA",
		"year":      int64(2023),
		"value":     88.7,
	}, result.Rows[0])
	assert.Nil(t, result.Rows[2]["value"], "null observations keep their row")

	assert.Equal(t, "percent", result.Unit, ".ZS codes are shares")
	assert.Equal(t, "2024-01-28", result.Freshness.AsOfDate)
	assert.Equal(t, "2024-01-28", result.Freshness.UpdatedAt)
	assert.Equal(t, "SL.TLF.CACT.ZS", result.Provenance.DatasetID)
	assert.Contains(t, result.Provenance.Locator, srv.URL)
	assert.Equal(t, []string{"indicator", "country", "year", "value"}, result.Provenance.Fields)
	assert.Empty(t, result.Warnings)
}

func TestWorldBankConnector_YearRangeAndCountry(t *testing.T) {
	var gotPath, gotDate string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotDate = r.URL.Query().Get("date")
		w.Write([]byte(wbParticipationBody))
	}))
	t.Cleanup(srv.Close)

	c := NewWorldBank(WithWorldBankBaseURL(srv.URL))
	_, err := c.Fetch(context.Background(), wbSpec(map[string]any{
		"indicator": "SL.TLF.CACT.ZS",
		"country":   "SA",
		"start":     2015,
		"end":       2023,
	}))
	require.NoError(t, err)

	assert.Equal(t, "/country/SA/indicator/SL.TLF.CACT.ZS", gotPath)
	assert.Equal(t, "2015:2023", gotDate)
}

func TestWorldBankConnector_EmptySeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"page": 1, "pages": 0, "total": 0, "lastupdated": "2024-01-28"}, []]`))
	}))
	t.Cleanup(srv.Close)

	c := NewWorldBank(WithWorldBankBaseURL(srv.URL))
	result, err := c.Fetch(context.Background(), wbSpec(map[string]any{
		"indicator": "SL.TLF.CACT.ZS",
	}))
	require.NoError(t, err)

	assert.Empty(t, result.Rows)
	assert.Equal(t, []string{WarnEmptyResult}, result.Warnings)
}

func TestWorldBankConnector_MissingIndicator(t *testing.T) {
	c := NewWorldBank()

	_, err := c.Fetch(context.Background(), wbSpec(map[string]any{}))

	var paramErr *ParamError
	require.ErrorAs(t, err, &paramErr)
	assert.Equal(t, "indicator", paramErr.Param)
}

func TestWorldBankConnector_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c := NewWorldBank(WithWorldBankBaseURL(srv.URL))
	_, err := c.Fetch(context.Background(), wbSpec(map[string]any{
		"indicator": "SL.TLF.CACT.ZS",
	}))

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "status 502", unavailable.Reason)
}

func TestWorldBankConnector_MalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{`},
		{name: "error shape instead of pages", body: `[{"message": [{"id": "120", "value": "Invalid indicator"}]}]`},
		{name: "observations not a list", body: `[{"total": 1}, {"oops": true}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			c := NewWorldBank(WithWorldBankBaseURL(srv.URL))
			_, err := c.Fetch(context.Background(), wbSpec(map[string]any{
				"indicator": "SL.TLF.CACT.ZS",
			}))

			var unavailable *UnavailableError
			require.ErrorAs(t, err, &unavailable)
			assert.Equal(t, "malformed response", unavailable.Reason)
		})
	}
}

func TestWorldBankConnector_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(wbParticipationBody))
	}))
	t.Cleanup(srv.Close)

	c := NewWorldBank(WithWorldBankBaseURL(srv.URL))
	_, err := c.Fetch(context.Background(), wbSpec(map[string]any{
		"indicator": "SL.TLF.CACT.ZS",
		"timeout_s": 0.05,
	}))

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 50*time.Millisecond, timeout.Limit)
}

func TestWorldBankConnector_InvalidTimeout(t *testing.T) {
	c := NewWorldBank()

	_, err := c.Fetch(context.Background(), wbSpec(map[string]any{
		"indicator": "SL.TLF.CACT.ZS",
		"timeout_s": -1,
	}))

	var paramErr *ParamError
	require.ErrorAs(t, err, &paramErr)
	assert.Equal(t, "timeout_s", paramErr.Param)
}
