package builtin

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/ports"
)

// searchTool performs keyword search over an in-process document index.
type searchTool struct {
	mu   sync.RWMutex
	docs []SearchDocument
}

// SearchDocument is one indexed entry.
type SearchDocument struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// NewSearch constructs the search tool over the given seed documents.
func NewSearch(docs ...SearchDocument) ports.Tool {
	return &searchTool{docs: docs}
}

func (t *searchTool) Type() ports.ToolType {
	return ports.ToolTypeSearch
}

func (t *searchTool) Name() string {
	return "search"
}

func (t *searchTool) Description() string {
	return "Full-text search over the indexed document set. Parameters: query (keywords), size (max results, default 10)."
}

func (t *searchTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search keywords",
			},
			"size": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results",
				"default":     10,
			},
		},
		"required": []string{"query"},
	}
}

func (t *searchTool) ValidateParams(params map[string]any) bool {
	_, ok := stringParam(params, "query")
	return ok
}

func (t *searchTool) Execute(_ context.Context, params map[string]any) (any, error) {
	query, err := requireString(params, "query")
	if err != nil {
		return nil, err
	}
	size := intParam(params, "size", 10)
	if size <= 0 {
		size = 10
	}

	terms := strings.Fields(strings.ToLower(query))

	type hit struct {
		ID      string  `json:"id"`
		Title   string  `json:"title"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var hits []hit
	for _, doc := range t.docs {
		haystack := strings.ToLower(doc.Title + " " + doc.Content)
		score := 0.0
		for _, term := range terms {
			score += float64(strings.Count(haystack, term))
		}
		if score > 0 {
			hits = append(hits, hit{ID: doc.ID, Title: doc.Title, Content: doc.Content, Score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > size {
		hits = hits[:size]
	}

	return map[string]any{
		"total":   len(hits),
		"results": hits,
	}, nil
}

// Index adds documents to the searchable set.
func (t *searchTool) Index(docs ...SearchDocument) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.docs = append(t.docs, docs...)
}
