// Package tools holds the capabilities the live model can invoke.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/soyeahso/iris/internal/domain"
	"github.com/soyeahso/iris/internal/logging"
)

// Tool is a capability the model can invoke during a session.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string

	// Description returns a human-readable description for the model.
	Description() string

	// Params lists the tool's string parameters.
	Params() []domain.ToolParam

	// Execute runs the tool and returns its textual result.
	Execute(ctx context.Context, args domain.Args) (string, error)
}

// Registry holds available tools and executes calls by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	log   *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{tools: make(map[string]Tool), log: log.Sub("tools")}
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Declarations returns model-ready declarations for all registered tools.
func (r *Registry) Declarations() []domain.ToolSpec {
	names := r.Names()
	specs := make([]domain.ToolSpec, 0, len(names))
	for _, n := range names {
		t, _ := r.Get(n)
		specs = append(specs, domain.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Params:      t.Params(),
		})
	}
	return specs
}

// Execute runs the named tool. An unknown name is an error.
func (r *Registry) Execute(ctx context.Context, name string, args domain.Args) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	r.log.Debug().Str("tool", name).Interface("args", args).Msg("executing tool")
	out, err := t.Execute(ctx, args)
	if err != nil {
		r.log.Warn().Err(err).Str("tool", name).Msg("tool failed")
		return "", err
	}
	return out, nil
}
