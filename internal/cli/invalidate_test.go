package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidate_EmptyMemoryCache(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewInvalidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/specs", "sector_headcount"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "no cache entries for sector_headcount\n", buf.String())
}

func TestInvalidate_JSONPayload(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewInvalidateCommand(&RootOptions{Format: "json", TraceID: "test-trace"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/specs", "sector_headcount"})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status  string           `json:"status"`
		TraceID string           `json:"trace_id"`
		Data    InvalidateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test-trace", resp.TraceID)
	assert.Equal(t, "sector_headcount", resp.Data.QueryID)
	assert.Equal(t, 0, resp.Data.Deleted)
}

func TestInvalidate_UnknownIDIsCommandError(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewInvalidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/specs", "missing"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeNotFound)
}

func TestInvalidate_BadCacheBackend(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewInvalidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/specs", "sector_headcount", "--cache", "redis"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "invalid cache backend")
}
