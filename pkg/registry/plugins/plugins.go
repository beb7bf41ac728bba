// Package plugins is the in-process half of the Unified Tool Registry
// (§4.5): tool providers that run inside the brain process rather than
// behind an MCP transport.
package plugins

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/baker-street/brain/pkg/registry"
	"github.com/baker-street/brain/pkg/router"
)

// Plugin is one in-process tool provider.
type Plugin interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Execute(ctx context.Context, input map[string]any) (string, error)
}

// Registry composes a fixed set of plugins, keyed by name.
type Registry struct {
	plugins map[string]Plugin
}

// New builds a Registry from the given plugins, keyed by their Name().
func New(plugins ...Plugin) *Registry {
	r := &Registry{plugins: make(map[string]Plugin, len(plugins))}
	for _, p := range plugins {
		r.plugins[p.Name()] = p
	}
	return r
}

// HasTool reports whether name is a registered plugin.
func (r *Registry) HasTool(name string) bool {
	_, ok := r.plugins[name]
	return ok
}

// ToolDefinitions lists every plugin's schema.
func (r *Registry) ToolDefinitions() []router.ToolDefinition {
	defs := make([]router.ToolDefinition, 0, len(r.plugins))
	for _, p := range r.plugins {
		defs = append(defs, router.ToolDefinition{
			Name:        p.Name(),
			Description: p.Description(),
			InputSchema: p.InputSchema(),
		})
	}
	return defs
}

// Execute runs the named plugin.
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any) (registry.ExecuteResult, error) {
	p, ok := r.plugins[name]
	if !ok {
		return registry.ExecuteResult{}, errors.Errorf("unknown tool: %s", name)
	}
	result, err := p.Execute(ctx, input)
	if err != nil {
		return registry.ExecuteResult{Result: fmt.Sprintf("tool execution failed: %v", err)}, nil
	}
	return registry.ExecuteResult{Result: result}, nil
}

// UtilTimeTool returns the current time, used as the canonical
// zero-argument plugin tool (§8 scenario 2).
type UtilTimeTool struct {
	now func() time.Time
}

// NewUtilTimeTool constructs the default util_time tool.
func NewUtilTimeTool() *UtilTimeTool {
	return &UtilTimeTool{now: time.Now}
}

func (t *UtilTimeTool) Name() string        { return "util_time" }
func (t *UtilTimeTool) Description() string { return "Returns the current UTC time in RFC3339 format." }
func (t *UtilTimeTool) InputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *UtilTimeTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	return t.now().UTC().Format(time.RFC3339), nil
}

// HTTPFetchTool performs a GET request and returns the truncated response
// body.
type HTTPFetchTool struct {
	client    *http.Client
	maxBytes  int64
}

// NewHTTPFetchTool constructs the http_fetch tool with a bounded response
// size.
func NewHTTPFetchTool() *HTTPFetchTool {
	return &HTTPFetchTool{
		client:   &http.Client{Timeout: 15 * time.Second},
		maxBytes: 64 * 1024,
	}
}

func (t *HTTPFetchTool) Name() string        { return "http_fetch" }
func (t *HTTPFetchTool) Description() string { return "Fetches a URL over HTTP GET and returns its body." }
func (t *HTTPFetchTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{"type": "string", "description": "URL to fetch"},
		},
		"required": []string{"url"},
	}
}

func (t *HTTPFetchTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	url, _ := input["url"].(string)
	if url == "" {
		return "", errors.New("url is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to build request")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to fetch url")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBytes))
	if err != nil {
		return "", errors.Wrap(err, "failed to read response body")
	}
	return fmt.Sprintf("status=%d\n%s", resp.StatusCode, string(body)), nil
}

// CommandTool runs a shell command with a bounded timeout, restricted to
// working directories under one of the configured allowed paths
// (TASK_ALLOWED_PATHS, §6). An empty allowlist denies every invocation.
type CommandTool struct {
	allowedPaths []string
	timeout      time.Duration
}

// NewCommandTool constructs the run_command tool scoped to allowedPaths.
func NewCommandTool(allowedPaths []string) *CommandTool {
	return &CommandTool{allowedPaths: allowedPaths, timeout: 30 * time.Second}
}

func (t *CommandTool) Name() string { return "run_command" }
func (t *CommandTool) Description() string {
	return "Runs a shell command in an allowed working directory and returns its combined output."
}
func (t *CommandTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string", "description": "Shell command to run"},
			"cwd":      map[string]any{"type": "string", "description": "Working directory, must be under an allowed path"},
		},
		"required": []string{"command", "cwd"},
	}
}

func (t *CommandTool) allowed(cwd string) bool {
	if len(t.allowedPaths) == 0 {
		return false
	}
	abs, err := filepath.Abs(cwd)
	if err != nil {
		return false
	}
	for _, allowed := range t.allowedPaths {
		allowedAbs, err := filepath.Abs(allowed)
		if err != nil {
			continue
		}
		if abs == allowedAbs || strings.HasPrefix(abs, allowedAbs+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (t *CommandTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	command, _ := input["command"].(string)
	cwd, _ := input["cwd"].(string)
	if command == "" || cwd == "" {
		return "", errors.New("command and cwd are required")
	}
	if !t.allowed(cwd) {
		return "", errors.Errorf("cwd %s is not under an allowed path", cwd)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = cwd
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "command failed, output: %s", out.String())
	}
	return out.String(), nil
}
