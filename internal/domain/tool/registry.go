// Package tool defines the named-operation registry the MCP service
// dispatches tools/list and tools/call against.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler executes one tool invocation. args is the raw JSON "arguments"
// object from the tools/call request (may be nil).
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool is a named operation exposed over tools/list and tools/call.
type Tool struct {
	Name        string
	Description string
	// InputSchema is the JSON Schema describing the tool's arguments.
	InputSchema json.RawMessage
	Handler     Handler
}

// Registry holds registered tools in registration order.
// Registration happens once at startup; lookups are read-only afterwards,
// so no locking is needed.
type Registry struct {
	order []string
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Duplicate names are a programming error.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.order = append(r.order, t.Name)
	r.tools[t.Name] = t
	return nil
}

// MustRegister is Register for static startup wiring; it panics on error.
func (r *Registry) MustRegister(t *Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get returns the named tool, or nil if unknown.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// List returns all tools in registration order.
func (r *Registry) List() []*Tool {
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}
