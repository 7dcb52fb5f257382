package toolregistry

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/ports"
)

const (
	defaultCacheMaxSize = 256
	defaultCacheTTL     = 5 * time.Minute
)

// CacheConfig configures the tool result cache behaviour.
type CacheConfig struct {
	// MaxSize is the maximum number of entries in the LRU cache.
	MaxSize int
	// TTL is how long a cached result remains valid.
	TTL time.Duration
}

// cacheEntry holds a cached tool result along with the timestamp it was stored.
type cacheEntry struct {
	result   any
	storedAt time.Time
}

// cachedTool is a Tool wrapper that caches Execute results keyed by
// (toolName + normalised parameters). Only read-only tools should be wrapped;
// the cache tool itself and anything with side effects must stay uncached.
type cachedTool struct {
	ports.Tool
	cache *lru.Cache[string, cacheEntry]
	ttl   time.Duration
}

// Cached wraps tool with an LRU result cache. Zero config values fall back to
// package defaults.
func Cached(tool ports.Tool, config CacheConfig) ports.Tool {
	if tool == nil {
		return nil
	}
	maxSize := config.MaxSize
	if maxSize <= 0 {
		maxSize = defaultCacheMaxSize
	}
	ttl := config.TTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	cache, err := lru.New[string, cacheEntry](maxSize)
	if err != nil {
		return tool
	}
	return &cachedTool{Tool: tool, cache: cache, ttl: ttl}
}

func (t *cachedTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	key := cacheKey(t.Name(), params)
	if entry, ok := t.cache.Get(key); ok {
		if time.Since(entry.storedAt) < t.ttl {
			return entry.result, nil
		}
		t.cache.Remove(key)
	}

	result, err := t.Tool.Execute(ctx, params)
	if err != nil {
		return nil, err
	}

	t.cache.Add(key, cacheEntry{result: result, storedAt: time.Now()})
	return result, nil
}

// cacheKey normalises the parameter map into a deterministic string so that
// semantically identical calls hit the same entry regardless of map order.
func cacheKey(name string, params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		if raw, err := json.Marshal(params[k]); err == nil {
			b.Write(raw)
		}
	}
	return b.String()
}
