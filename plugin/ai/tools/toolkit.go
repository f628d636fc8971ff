// Package tools provides the pluggable ability registry for chat generations.
// Adapters resolve tool definitions per request; the registry merges them.
package tools

import (
	"context"
	"encoding/json"
)

// Context carries the per-request state adapters resolve against.
type Context struct {
	// UserID is the authenticated caller.
	UserID int32
	// ThreadUID is the thread the generation belongs to.
	ThreadUID string
	// EnabledTools is the caller's enabled-ability list for this call.
	EnabledTools []string
}

// IsEnabled reports whether the caller enabled the named ability.
func (c *Context) IsEnabled(name string) bool {
	for _, t := range c.EnabledTools {
		if t == name {
			return true
		}
	}
	return false
}

// Definition describes one callable tool.
type Definition struct {
	// Name is the tool identifier offered to the model.
	Name string
	// Description tells the model when to call the tool.
	Description string
	// Parameters is the JSON schema of the tool's arguments.
	Parameters json.RawMessage
	// Execute runs the tool. Implementations return an error only for
	// infrastructure failures; domain failures go into the payload.
	Execute func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
}

// Adapter resolves the tool definitions one ability contributes for a request.
// An adapter whose ability is not enabled returns nil.
type Adapter func(tc *Context) []*Definition

// Registry merges the definitions of all registered adapters.
type Registry struct {
	adapters []Adapter
}

// NewRegistry creates a registry over the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// Resolve returns the tool map for one request. Later adapters win on
// name collisions.
func (r *Registry) Resolve(tc *Context) map[string]*Definition {
	resolved := make(map[string]*Definition)
	for _, adapter := range r.adapters {
		for _, def := range adapter(tc) {
			if def == nil || def.Name == "" {
				continue
			}
			resolved[def.Name] = def
		}
	}
	return resolved
}
