// Package skills is the skill registry half of the Unified Tool Registry
// (§4.5): it owns every registered skill with tier >= 1, connects each to
// its MCP transport, and dispatches tool calls to the owning skill.
package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pkg/errors"

	"github.com/baker-street/brain/pkg/logger"
	"github.com/baker-street/brain/pkg/registry"
	"github.com/baker-street/brain/pkg/router"
	"github.com/baker-street/brain/pkg/store"
)

// sanitizeName is applied to every tool name an MCP server reports before
// it is registered (§4.5): non-matching characters collapse to '_' and the
// result is truncated to 128 characters.
var sanitizeNamePattern = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func sanitizeName(name string) string {
	sanitized := sanitizeNamePattern.ReplaceAllString(name, "_")
	if len(sanitized) > 128 {
		sanitized = sanitized[:128]
	}
	return sanitized
}

// connectedSkill is one live skill connection: its client and the tools it
// currently owns, keyed by sanitized name.
type connectedSkill struct {
	skillID string
	client  *client.Client
	tools   map[string]mcp.Tool
}

// Registry is the skill half of the Unified Tool Registry. It reads
// enabled skills from the store on startup, connects each over its MCP
// transport, and registers sanitizedName -> skillId, first registration
// wins on conflict (§4.5).
type Registry struct {
	store *store.Store

	mu       sync.RWMutex
	skills   map[string]*connectedSkill    // skillID -> connection
	toolName map[string]string             // sanitizedName -> skillID
	defs     map[string]router.ToolDefinition
}

// New constructs an empty Registry; call Refresh to connect skills.
func New(st *store.Store) *Registry {
	return &Registry{
		store:    st,
		skills:   make(map[string]*connectedSkill),
		toolName: make(map[string]string),
		defs:     make(map[string]router.ToolDefinition),
	}
}

// Refresh reads enabled skills from the store and connects any that are
// not already connected. It never disconnects a skill that disappeared
// from the enabled list; callers use DisconnectSkill for that.
func (r *Registry) Refresh(ctx context.Context) error {
	enabled, err := r.store.ListSkills(ctx, true)
	if err != nil {
		return errors.Wrap(err, "failed to list enabled skills")
	}

	var multiErr error
	for _, skill := range enabled {
		if skill.Tier < store.TierStdio {
			continue
		}
		r.mu.RLock()
		_, connected := r.skills[skill.ID]
		r.mu.RUnlock()
		if connected {
			continue
		}
		if err := r.connectAndRegister(ctx, skill); err != nil {
			logger.G(ctx).WithError(err).WithField("skill", skill.Name).Warn("failed to connect skill")
			multiErr = multierror.Append(multiErr, err)
		}
	}
	return multiErr
}

func newMCPClient(skill store.Skill) (*client.Client, error) {
	switch {
	case skill.StdioCommand != nil && *skill.StdioCommand != "":
		var args []string
		if skill.StdioArgs != nil {
			if err := json.Unmarshal([]byte(*skill.StdioArgs), &args); err != nil {
				return nil, errors.Wrap(err, "failed to decode stdio args")
			}
		}
		tp := transport.NewStdio(*skill.StdioCommand, nil, args...)
		return client.NewClient(tp), nil
	case skill.HTTPURL != nil && *skill.HTTPURL != "":
		tp, err := transport.NewSSE(*skill.HTTPURL)
		if err != nil {
			return nil, errors.Wrap(err, "failed to construct sse transport")
		}
		return client.NewClient(tp), nil
	default:
		return nil, errors.Errorf("skill %s has neither stdio_command nor http_url", skill.Name)
	}
}

// connectAndRegister connects one skill's MCP client, lists its tools, and
// registers each sanitized name. Name conflicts across skills are skipped
// with a warning, first registration wins (§4.5).
func (r *Registry) connectAndRegister(ctx context.Context, skill store.Skill) error {
	c, err := newMCPClient(skill)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start mcp transport")
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "baker-street-brain", Version: skill.Version}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return errors.Wrap(err, "failed to initialize mcp session")
	}

	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		return errors.Wrap(err, "failed to list mcp tools")
	}

	conn := &connectedSkill{skillID: skill.ID, client: c, tools: make(map[string]mcp.Tool)}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tool := range listed.Tools {
		sanitized := sanitizeName(tool.GetName())
		if _, exists := r.toolName[sanitized]; exists {
			logger.G(ctx).WithField("tool", sanitized).WithField("skill", skill.Name).
				Warn("skipping duplicate tool name, first registration wins")
			continue
		}
		conn.tools[sanitized] = tool
		r.toolName[sanitized] = skill.ID
		r.defs[sanitized] = router.ToolDefinition{
			Name:        sanitized,
			Description: tool.Description,
			InputSchema: toolInputSchema(tool),
		}
	}
	r.skills[skill.ID] = conn
	return nil
}

func toolInputSchema(tool mcp.Tool) map[string]any {
	b, err := tool.InputSchema.MarshalJSON()
	if err != nil {
		return map[string]any{}
	}
	var schema map[string]any
	if err := json.Unmarshal(b, &schema); err != nil {
		return map[string]any{}
	}
	return schema
}

// DisconnectSkill closes one skill's MCP client and removes every tool it
// owned.
func (r *Registry) DisconnectSkill(ctx context.Context, skillID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.skills[skillID]
	if !ok {
		return nil
	}
	for name, owner := range r.toolName {
		if owner == skillID {
			delete(r.toolName, name)
			delete(r.defs, name)
		}
	}
	delete(r.skills, skillID)
	if err := conn.client.Close(); err != nil {
		return errors.Wrap(err, "failed to close mcp client")
	}
	return nil
}

// Shutdown closes every connected skill's MCP client.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var multiErr error
	for id, conn := range r.skills {
		if err := conn.client.Close(); err != nil {
			multiErr = multierror.Append(multiErr, err)
		}
		delete(r.skills, id)
	}
	r.toolName = make(map[string]string)
	r.defs = make(map[string]router.ToolDefinition)
	return multiErr
}

// HasTool reports whether a skill owns the given sanitized tool name.
func (r *Registry) HasTool(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.toolName[name]
	return ok
}

// ToolDefinitions lists every tool currently owned by a connected skill.
func (r *Registry) ToolDefinitions() []router.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]router.ToolDefinition, 0, len(r.defs))
	for _, d := range r.defs {
		defs = append(defs, d)
	}
	return defs
}

// Execute calls the owning skill's MCP server and joins the text content
// blocks of the response into a single result string, or a diagnostic
// string on error (§4.5).
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any) (registry.ExecuteResult, error) {
	r.mu.RLock()
	skillID, ok := r.toolName[name]
	var conn *connectedSkill
	var toolName string
	if ok {
		conn = r.skills[skillID]
		toolName = conn.tools[name].GetName()
	}
	r.mu.RUnlock()
	if !ok || conn == nil {
		return registry.ExecuteResult{}, errors.Errorf("unknown tool: %s", name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = input

	result, err := conn.client.CallTool(ctx, req)
	if err != nil {
		return registry.ExecuteResult{Result: fmt.Sprintf("tool execution failed: %v", err)}, nil
	}

	text := ""
	for _, c := range result.Content {
		if block, ok := c.(mcp.TextContent); ok {
			text += block.Text
		}
	}
	return registry.ExecuteResult{Result: text}, nil
}
