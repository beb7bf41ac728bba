package plugins

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUtilTimeTool_ReturnsRFC3339(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tool := &UtilTimeTool{now: func() time.Time { return fixed }}
	result, err := tool.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01T00:00:00Z", result)
}

func TestHTTPFetchTool_FetchesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	tool := NewHTTPFetchTool()
	result, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	assert.Contains(t, result, "status=200")
	assert.Contains(t, result, "hello")
}

func TestHTTPFetchTool_RequiresURL(t *testing.T) {
	tool := NewHTTPFetchTool()
	_, err := tool.Execute(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestCommandTool_DeniesOutsideAllowedPaths(t *testing.T) {
	tool := NewCommandTool([]string{})
	_, err := tool.Execute(context.Background(), map[string]any{"command": "echo hi", "cwd": os.TempDir()})
	assert.Error(t, err)
}

func TestCommandTool_RunsInsideAllowedPath(t *testing.T) {
	dir := t.TempDir()
	tool := NewCommandTool([]string{dir})
	result, err := tool.Execute(context.Background(), map[string]any{"command": "echo hi", "cwd": dir})
	require.NoError(t, err)
	assert.Contains(t, result, "hi")
}

func TestCommandTool_DeniesSiblingDirectory(t *testing.T) {
	dir := t.TempDir()
	sibling := filepath.Dir(dir)
	tool := NewCommandTool([]string{dir})
	assert.False(t, tool.allowed(sibling))
}

func TestRegistry_DispatchesByName(t *testing.T) {
	reg := New(NewUtilTimeTool())
	assert.True(t, reg.HasTool("util_time"))
	assert.False(t, reg.HasTool("nonexistent"))

	result, err := reg.Execute(context.Background(), "util_time", map[string]any{})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Result)
}
