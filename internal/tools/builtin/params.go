// Package builtin provides the concrete tool implementations, one per tool
// type variant.
package builtin

import "fmt"

func stringParam(params map[string]any, key string) (string, bool) {
	raw, ok := params[key]
	if !ok {
		return "", false
	}
	value, ok := raw.(string)
	return value, ok
}

func intParam(params map[string]any, key string, fallback int) int {
	raw, ok := params[key]
	if !ok {
		return fallback
	}
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func requireString(params map[string]any, key string) (string, error) {
	value, ok := stringParam(params, key)
	if !ok || value == "" {
		return "", fmt.Errorf("parameter %q is required", key)
	}
	return value, nil
}
