package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/ports"
)

const (
	defaultCacheEntries = 1024
	defaultCacheTTL     = time.Hour
)

// cacheTool exposes get/set/delete over an expiring LRU store.
type cacheTool struct {
	store *lru.LRU[string, any]
}

// NewCache constructs the cache tool. maxEntries <= 0 uses the default size.
func NewCache(maxEntries int) ports.Tool {
	if maxEntries <= 0 {
		maxEntries = defaultCacheEntries
	}
	return &cacheTool{
		store: lru.NewLRU[string, any](maxEntries, nil, defaultCacheTTL),
	}
}

func (t *cacheTool) Type() ports.ToolType {
	return ports.ToolTypeCache
}

func (t *cacheTool) Name() string {
	return "cache"
}

func (t *cacheTool) Description() string {
	return "Key/value cache with a one hour expiry. Parameters: operation (get/set/delete), key, value (required for set)."
}

func (t *cacheTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"description": "Operation to perform",
				"enum":        []string{"get", "set", "delete"},
			},
			"key": map[string]any{
				"type":        "string",
				"description": "Cache key",
			},
			"value": map[string]any{
				"type":        "object",
				"description": "Value to store (set only)",
			},
		},
		"required": []string{"operation", "key"},
	}
}

func (t *cacheTool) ValidateParams(params map[string]any) bool {
	operation, ok := stringParam(params, "operation")
	if !ok {
		return false
	}
	if _, ok := stringParam(params, "key"); !ok {
		return false
	}
	if strings.EqualFold(operation, "set") {
		_, hasValue := params["value"]
		return hasValue
	}
	return true
}

func (t *cacheTool) Execute(_ context.Context, params map[string]any) (any, error) {
	operation, err := requireString(params, "operation")
	if err != nil {
		return nil, err
	}
	key, err := requireString(params, "key")
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(operation) {
	case "get":
		value, ok := t.store.Get(key)
		return map[string]any{
			"success": true,
			"exists":  ok,
			"value":   value,
		}, nil

	case "set":
		t.store.Add(key, params["value"])
		return map[string]any{
			"success": true,
			"message": "cache entry stored",
		}, nil

	case "delete":
		deleted := t.store.Remove(key)
		return map[string]any{
			"success": true,
			"deleted": deleted,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported cache operation: %s", operation)
	}
}
