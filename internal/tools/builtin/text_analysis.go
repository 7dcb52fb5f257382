package builtin

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/ports"
)

// textAnalysisTool computes basic statistics over free text: word, sentence
// and character counts, the most frequent terms, and the model token count.
type textAnalysisTool struct {
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
}

// NewTextAnalysis constructs the text_analysis tool.
func NewTextAnalysis() ports.Tool {
	return &textAnalysisTool{}
}

func (t *textAnalysisTool) Type() ports.ToolType {
	return ports.ToolTypeTextAnalysis
}

func (t *textAnalysisTool) Name() string {
	return "text_analysis"
}

func (t *textAnalysisTool) Description() string {
	return "Analyze text: word/sentence/character counts, top terms and token count. Parameters: text, top_terms (default 5)."
}

func (t *textAnalysisTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "Text to analyze",
			},
			"top_terms": map[string]any{
				"type":        "integer",
				"description": "Number of most frequent terms to return",
				"default":     5,
			},
		},
		"required": []string{"text"},
	}
}

func (t *textAnalysisTool) ValidateParams(params map[string]any) bool {
	_, ok := stringParam(params, "text")
	return ok
}

func (t *textAnalysisTool) Execute(_ context.Context, params map[string]any) (any, error) {
	text, err := requireString(params, "text")
	if err != nil {
		return nil, err
	}
	topN := intParam(params, "top_terms", 5)
	if topN <= 0 {
		topN = 5
	}

	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	frequencies := make(map[string]int)
	for _, word := range words {
		frequencies[strings.ToLower(word)]++
	}

	type term struct {
		Term  string `json:"term"`
		Count int    `json:"count"`
	}
	terms := make([]term, 0, len(frequencies))
	for word, count := range frequencies {
		terms = append(terms, term{Term: word, Count: count})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
	if len(terms) > topN {
		terms = terms[:topN]
	}

	result := map[string]any{
		"characters":  len([]rune(text)),
		"words":       len(words),
		"sentences":   countSentences(text),
		"uniqueTerms": len(frequencies),
		"topTerms":    terms,
	}
	if tokens, ok := t.countTokens(text); ok {
		result["tokens"] = tokens
	}
	return result, nil
}

// countTokens is best effort: the tokenizer pulls its BPE ranks lazily and
// may be unavailable offline, in which case the count is omitted.
func (t *textAnalysisTool) countTokens(text string) (int, bool) {
	t.encodingOnce.Do(func() {
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			t.encoding = enc
		}
	})
	if t.encoding == nil {
		return 0, false
	}
	return len(t.encoding.Encode(text, nil, nil)), true
}

func countSentences(text string) int {
	count := 0
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			count++
		}
	}
	if count == 0 && strings.TrimSpace(text) != "" {
		count = 1
	}
	return count
}
