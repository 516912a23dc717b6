package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rhuss/datagem/pkg/debug"
	"github.com/rhuss/datagem/pkg/observability"
)

// Registry maps tool names to providers. Each chat session builds its own
// Registry so providers can be bound to session state such as the dataset.
type Registry struct {
	mu        sync.RWMutex
	providers map[Name]Provider
}

// NewRegistry creates a Registry holding the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[Name]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds a provider. If a provider with the same tool name is
// already registered, the first one is kept and a warning is logged.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Definition().Name
	if _, ok := r.providers[name]; ok {
		slog.Warn("tool name conflict, keeping first provider", "tool", name)
		return
	}
	r.providers[name] = p
}

// List returns the definitions of all registered tools, sorted by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.providers))
	for _, p := range r.providers {
		defs = append(defs, p.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[Name(name)]
	return ok
}

// Invoke runs the named tool. It returns an error wrapping ErrUnknownTool
// for unregistered names. Provider panics are recovered and returned as
// errors.
func (r *Registry) Invoke(ctx context.Context, name, arguments string) (output string, err error) {
	r.mu.RLock()
	p, ok := r.providers[Name(name)]
	r.mu.RUnlock()

	if !ok {
		observability.ToolExecutionsTotal.WithLabelValues("unknown", "unknown_tool").Inc()
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	start := time.Now()
	status := "success"
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("tool provider panicked", "tool", name, "panic", rec)
			output = ""
			err = fmt.Errorf("internal error: tool %q panicked", name)
			status = "panic"
		}
		observability.ToolExecutionsTotal.WithLabelValues(name, status).Inc()
		observability.ToolDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		debug.Log(debug.Tools, "tool invoked",
			"tool", name,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	output, err = p.Execute(ctx, arguments)
	if err != nil {
		status = "error"
		if errors.Is(err, ErrInvalidArguments) {
			status = "invalid_arguments"
		}
	}
	return output, err
}
