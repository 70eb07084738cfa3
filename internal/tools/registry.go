// Package tools provides the bridge's tool registry: declaratively
// registered tools with typed parameter schemas and risk tiers. Schemas are
// handed to the workflow factory as opaque OpenAI function definitions and
// exposed over the MCP surface.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// RiskLevel classifies a tool for permission decisions.
type RiskLevel string

const (
	// RiskLow marks read-only, safe operations.
	RiskLow RiskLevel = "low"
	// RiskMedium marks operations that modify state.
	RiskMedium RiskLevel = "medium"
	// RiskHigh marks destructive operations.
	RiskHigh RiskLevel = "high"
)

// Param describes a single tool parameter.
type Param struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// Result is the outcome of a tool execution.
type Result struct {
	Success bool   `json:"success"`
	Output  any    `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK builds a successful result.
func OK(output any) Result { return Result{Success: true, Output: output} }

// Fail builds a failed result.
func Fail(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Func is a tool implementation.
type Func func(ctx context.Context, args map[string]any) Result

// Tool is one registered tool. Parameter schemas are declared explicitly at
// registration, not derived by reflection.
type Tool struct {
	Name        string
	Description string
	Params      map[string]Param
	Required    []string
	Risk        RiskLevel
	Func        Func
}

// Execute runs the tool. A nil implementation fails cleanly.
func (t *Tool) Execute(ctx context.Context, args map[string]any) Result {
	if t.Func == nil {
		return Fail("tool %s has no implementation", t.Name)
	}
	return t.Func(ctx, args)
}

// Schema returns the tool's OpenAI-compatible function schema.
func (t *Tool) Schema() map[string]any {
	properties := map[string]any{}
	for name, p := range t.Params {
		prop := map[string]any{"type": p.Type, "description": p.Description}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if p.Enum != nil {
			prop["enum"] = p.Enum
		}
		properties[name] = prop
	}
	required := t.Required
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters": map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}

// Registry holds the registered tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// DefaultRegistry returns a registry with the built-in file and network
// tools registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	registerFileTools(r)
	registerNetTools(r)
	return r
}

// Register adds a tool. Registering a duplicate name is a programming error.
func (r *Registry) Register(t *Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all tools sorted by name.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Schemas returns the OpenAI function schemas of every tool, sorted by name.
func (r *Registry) Schemas() []map[string]any {
	tools := r.List()
	schemas := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		schemas = append(schemas, t.Schema())
	}
	return schemas
}
