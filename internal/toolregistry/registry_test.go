package toolregistry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/ports"
)

type stubTool struct {
	name     string
	valid    bool
	result   any
	err      error
	panics   bool
	executed int
}

func (t *stubTool) Type() ports.ToolType               { return ports.ToolTypeCalculator }
func (t *stubTool) Name() string                       { return t.name }
func (t *stubTool) Description() string                { return "stub" }
func (t *stubTool) ParameterSchema() map[string]any    { return map[string]any{"type": "object"} }
func (t *stubTool) ValidateParams(map[string]any) bool { return t.valid }

func (t *stubTool) Execute(context.Context, map[string]any) (any, error) {
	t.executed++
	if t.panics {
		panic("stub exploded")
	}
	return t.result, t.err
}

func TestRegistry_DuplicateNameRejected(t *testing.T) {
	_, err := New(&stubTool{name: "same"}, &stubTool{name: "same"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tool name")
}

func TestRegistry_GetAndList(t *testing.T) {
	registry, err := New(&stubTool{name: "beta"}, &stubTool{name: "alpha"})
	require.NoError(t, err)

	tool, err := registry.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", tool.Name())

	_, err = registry.Get("gamma")
	assert.ErrorIs(t, err, ErrToolNotFound)

	names := []string{}
	for _, tool := range registry.List() {
		names = append(names, tool.Name())
	}
	assert.Equal(t, []string{"alpha", "beta"}, names, "List must be sorted by name")
}

func TestRegistry_DispatchSuccess(t *testing.T) {
	stub := &stubTool{name: "ok", valid: true, result: map[string]any{"value": 7}}
	registry, err := New(stub)
	require.NoError(t, err)

	call := &ports.ToolCall{Name: "ok", Parameters: map[string]any{"x": 1}}
	result := registry.Dispatch(context.Background(), call)

	assert.True(t, call.Success)
	assert.Empty(t, call.Error)
	assert.Equal(t, ports.ToolTypeCalculator, call.Type)
	assert.Equal(t, map[string]any{"value": 7}, result)
	assert.Equal(t, result, call.Result)
}

func TestRegistry_DispatchUnknownTool(t *testing.T) {
	registry, err := New()
	require.NoError(t, err)

	call := &ports.ToolCall{Name: "nope"}
	result := registry.Dispatch(context.Background(), call)

	assert.False(t, call.Success)
	assert.Contains(t, call.Error, "tool not found")

	structured, ok := result.(map[string]any)
	require.True(t, ok, "failure result must be structured")
	assert.Equal(t, false, structured["success"])
	assert.Contains(t, structured["error"], "tool not found")
}

func TestRegistry_DispatchInvalidParameters(t *testing.T) {
	registry, err := New(&stubTool{name: "strict", valid: false})
	require.NoError(t, err)

	call := &ports.ToolCall{Name: "strict", Parameters: map[string]any{}}
	registry.Dispatch(context.Background(), call)

	assert.False(t, call.Success)
	assert.Contains(t, call.Error, "invalid tool parameters")
}

func TestRegistry_DispatchToolError(t *testing.T) {
	registry, err := New(&stubTool{name: "flaky", valid: true, err: errors.New("upstream 500")})
	require.NoError(t, err)

	call := &ports.ToolCall{Name: "flaky"}
	registry.Dispatch(context.Background(), call)

	assert.False(t, call.Success)
	assert.Contains(t, call.Error, "upstream 500")
	assert.Contains(t, call.Error, "tool flaky execution failed")
}

func TestRegistry_DispatchRecoversPanic(t *testing.T) {
	registry, err := New(&stubTool{name: "bomb", valid: true, panics: true})
	require.NoError(t, err)

	call := &ports.ToolCall{Name: "bomb"}
	registry.Dispatch(context.Background(), call)

	assert.False(t, call.Success)
	assert.Contains(t, call.Error, "panic: stub exploded")
}

func TestCached_HitSkipsExecution(t *testing.T) {
	stub := &stubTool{name: "lookup", valid: true, result: "cached value"}
	tool := Cached(stub, CacheConfig{MaxSize: 8, TTL: time.Minute})

	params := map[string]any{"b": 2, "a": 1}
	first, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)

	// Same parameters in a different map order must hit the cache.
	second, err := tool.Execute(context.Background(), map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, stub.executed, "second call must be served from cache")
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	stub := &stubTool{name: "flaky", valid: true, err: errors.New("transient")}
	tool := Cached(stub, CacheConfig{})

	_, err := tool.Execute(context.Background(), map[string]any{"q": "x"})
	require.Error(t, err)
	_, err = tool.Execute(context.Background(), map[string]any{"q": "x"})
	require.Error(t, err)

	assert.Equal(t, 2, stub.executed, "failed calls must be retried, not cached")
}

func TestCacheKeyDeterministic(t *testing.T) {
	a := cacheKey("t", map[string]any{"x": 1, "y": "z"})
	b := cacheKey("t", map[string]any{"y": "z", "x": 1})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, cacheKey("t", map[string]any{"x": 2, "y": "z"}))
}
