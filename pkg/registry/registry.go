// Package registry composes the skill and plugin sub-registries into the
// Unified Tool Registry (§4.5): a single place the agent loop asks
// "does a tool with this name exist" and "execute it".
package registry

import (
	"context"

	"github.com/baker-street/brain/pkg/router"
)

// ExecuteResult is the normalized shape every tool execution returns
// (§4.5): a joined text result, or a diagnostic string on error. JobID is
// set by tools that dispatch asynchronous work (§4.8 step 4), so the
// agent loop can collect it into the turn's jobIds.
type ExecuteResult struct {
	Result string
	JobID  string
}

// SubRegistry is implemented by both the skill registry and the plugin
// registry so the Unified Tool Registry can delegate uniformly.
type SubRegistry interface {
	HasTool(name string) bool
	Execute(ctx context.Context, name string, input map[string]any) (ExecuteResult, error)
	ToolDefinitions() []router.ToolDefinition
}

// Registry is the Unified Tool Registry (§4.5). The skill registry is
// consulted before the plugin registry for both lookup and execution;
// allToolDefinitions lists skill tools first and skill definitions shadow
// plugin definitions of the same name.
type Registry struct {
	skills  SubRegistry
	plugins SubRegistry
}

// New composes a skill registry and a plugin registry.
func New(skills, plugins SubRegistry) *Registry {
	return &Registry{skills: skills, plugins: plugins}
}

// HasTool reports whether either sub-registry owns name.
func (r *Registry) HasTool(name string) bool {
	return r.skills.HasTool(name) || r.plugins.HasTool(name)
}

// Execute dispatches to the skill registry first, falling back to the
// plugin registry only if the skill registry does not own the tool
// (§4.5).
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any) (ExecuteResult, error) {
	if r.skills.HasTool(name) {
		return r.skills.Execute(ctx, name, input)
	}
	return r.plugins.Execute(ctx, name, input)
}

// AllToolDefinitions concatenates both sets, skill tools first; when names
// collide the skill definition shadows the plugin definition (§4.5).
func (r *Registry) AllToolDefinitions() []router.ToolDefinition {
	skillDefs := r.skills.ToolDefinitions()
	seen := make(map[string]bool, len(skillDefs))
	defs := make([]router.ToolDefinition, 0, len(skillDefs))
	for _, d := range skillDefs {
		seen[d.Name] = true
		defs = append(defs, d)
	}
	for _, d := range r.plugins.ToolDefinitions() {
		if seen[d.Name] {
			continue
		}
		defs = append(defs, d)
	}
	return defs
}
