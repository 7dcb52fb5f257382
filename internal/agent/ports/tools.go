package ports

import (
	"context"
	"fmt"
)

// ToolType classifies the built-in tool families. The set is closed; adding a
// variant requires updating Valid and the builtin constructors together.
type ToolType string

const (
	ToolTypeSearch        ToolType = "search"
	ToolTypeDatabaseQuery ToolType = "database_query"
	ToolTypeCache         ToolType = "cache"
	ToolTypeHTTPRequest   ToolType = "http_request"
	ToolTypeCalculator    ToolType = "calculator"
	ToolTypeTextAnalysis  ToolType = "text_analysis"
)

// Valid reports whether t is one of the known tool types.
func (t ToolType) Valid() bool {
	switch t {
	case ToolTypeSearch, ToolTypeDatabaseQuery, ToolTypeCache,
		ToolTypeHTTPRequest, ToolTypeCalculator, ToolTypeTextAnalysis:
		return true
	default:
		return false
	}
}

func (t ToolType) String() string {
	return string(t)
}

// Tool is the capability contract every agent tool implements.
type Tool interface {
	// Type returns the tool's type tag
	Type() ToolType

	// Name returns the stable tool name used in prompts and dispatch
	Name() string

	// Description returns a human-readable description for prompt construction
	Description() string

	// ParameterSchema returns a JSON-schema-shaped parameter description
	ParameterSchema() map[string]any

	// Execute runs the tool with the given parameter map
	Execute(ctx context.Context, params map[string]any) (any, error)

	// ValidateParams reports whether the parameter map is acceptable
	ValidateParams(params map[string]any) bool
}

// ToolCall records one requested tool invocation and its outcome. Field names
// mirror the wire format served to clients.
type ToolCall struct {
	ID         string         `json:"toolId"`
	Type       ToolType       `json:"toolType,omitempty"`
	Name       string         `json:"toolName"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Result     any            `json:"result,omitempty"`
	Success    bool           `json:"success"`
	Error      string         `json:"errorMessage,omitempty"`
}

// ToolRegistry resolves and dispatches tool calls.
type ToolRegistry interface {
	// Get returns the tool registered under name
	Get(name string) (Tool, error)

	// List returns every registered tool
	List() []Tool

	// Dispatch validates and executes call, populating its Result, Success
	// and Error fields. Tool failures are converted into a structured error
	// result; Dispatch itself never returns an error for them.
	Dispatch(ctx context.Context, call *ToolCall) any
}

// ToolExecutionError wraps a failure raised inside a tool's Execute.
type ToolExecutionError struct {
	ToolName string
	Err      error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s execution failed: %v", e.ToolName, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}
