package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/qnwis/qnwis/internal/query"
)

// fetchJSON GETs rawURL under the given timeout and unmarshals the body
// into target. Deadline hits come back as *TimeoutError; every other
// failure, including a non-200 status and a body that does not parse, is
// an *UnavailableError.
func fetchJSON(ctx context.Context, client *http.Client, source query.Source, rawURL string, timeout time.Duration, target any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &UnavailableError{Source: source, Reason: "building request failed", Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &TimeoutError{Source: source, Limit: timeout, Err: err}
		}
		return &UnavailableError{Source: source, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &UnavailableError{Source: source, Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &TimeoutError{Source: source, Limit: timeout, Err: err}
		}
		return &UnavailableError{Source: source, Reason: "reading response failed", Err: err}
	}

	if err := json.Unmarshal(body, target); err != nil {
		return &UnavailableError{Source: source, Reason: "malformed response", Err: err}
	}
	return nil
}
