// Package toolregistry holds the process-wide tool set and dispatches tool
// calls. The registry is immutable after construction, so lookups from
// concurrently running tasks need no synchronization beyond the map itself.
package toolregistry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/ports"
	"github.com/coderpwh1024/multi-agent-system/internal/logging"
)

var (
	// ErrToolNotFound is reported when a dispatched call names an
	// unregistered tool.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidParameters is reported when a tool rejects the call's
	// parameter map.
	ErrInvalidParameters = errors.New("invalid tool parameters")
)

// Registry implements ports.ToolRegistry over a fixed tool set.
type Registry struct {
	tools  map[string]ports.Tool
	logger logging.Logger
}

// New constructs a registry from the given tools. Duplicate tool names are a
// configuration error.
func New(tools ...ports.Tool) (*Registry, error) {
	r := &Registry{
		tools:  make(map[string]ports.Tool, len(tools)),
		logger: logging.NewComponentLogger("ToolRegistry"),
	}
	for _, tool := range tools {
		name := tool.Name()
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("duplicate tool name: %s", name)
		}
		r.tools[name] = tool
	}
	return r, nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (ports.Tool, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return tool, nil
}

// List returns every registered tool, sorted by name for stable prompt and
// log output.
func (r *Registry) List() []ports.Tool {
	out := make([]ports.Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Dispatch resolves and executes call, populating its Result, Success and
// Error fields. Every failure mode -- unknown tool, rejected parameters, or
// an error from Execute -- is converted into a structured error result so a
// failing tool never fails the enclosing task step.
func (r *Registry) Dispatch(ctx context.Context, call *ports.ToolCall) any {
	tool, err := r.Get(call.Name)
	if err != nil {
		return r.failCall(call, err)
	}
	call.Type = tool.Type()

	if !tool.ValidateParams(call.Parameters) {
		return r.failCall(call, fmt.Errorf("%w for tool %s", ErrInvalidParameters, call.Name))
	}

	result, err := func() (result any, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = &ports.ToolExecutionError{ToolName: call.Name, Err: fmt.Errorf("panic: %v", rec)}
			}
		}()
		result, err = tool.Execute(ctx, call.Parameters)
		if err != nil {
			err = &ports.ToolExecutionError{ToolName: call.Name, Err: err}
		}
		return result, err
	}()
	if err != nil {
		return r.failCall(call, err)
	}

	call.Result = result
	call.Success = true
	call.Error = ""
	return result
}

// failCall records err on the call and returns the structured error result
// used as the step's observation.
func (r *Registry) failCall(call *ports.ToolCall, err error) any {
	r.logger.Warn("tool dispatch failed: tool=%s err=%v", call.Name, err)
	call.Success = false
	call.Error = err.Error()
	result := map[string]any{
		"success": false,
		"error":   err.Error(),
	}
	call.Result = result
	return result
}
