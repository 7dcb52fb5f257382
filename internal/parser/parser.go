// Package parser turns one raw model completion into the structured
// thinking/action/tool-call/final-answer fragment consumed by the execution
// loop. Parsing is pure and deterministic: malformed text never produces an
// error, it degrades to a plain observation.
package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/ports"
)

// Reply-format markers. These must stay in sync with the reply-format
// instruction emitted by domain.BuildSystemPrompt.
const (
	MarkerThinking    = "THINKING:"
	MarkerAction      = "ACTION:"
	MarkerFinalAnswer = "FINAL_ANSWER:"
	MarkerToolCall    = "TOOL_CALL:"
)

var toolNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*`)

type parser struct{}

// New returns the marker-based response parser.
func New() ports.ResponseParser {
	return parser{}
}

// Parse segments content into its labeled sections and detects tool-call
// requests against the allowed tool list. Re-parsing identical text always
// yields an identical result.
func (parser) Parse(content string, availableTools []string) ports.ParsedResponse {
	out := ports.ParsedResponse{
		Thinking: extractSection(content, MarkerThinking, MarkerAction, MarkerFinalAnswer),
		Action:   extractSection(content, MarkerAction, MarkerFinalAnswer),
	}

	if idx := strings.Index(content, MarkerFinalAnswer); idx >= 0 {
		out.IsFinal = true
		out.FinalAnswer = strings.TrimSpace(content[idx+len(MarkerFinalAnswer):])
	}

	if call := parseToolCall(out.Action, availableTools); call != nil {
		out.ToolCall = call
	}

	return out
}

// extractSection returns the text between start and the earliest of the end
// markers that is actually present, or to end-of-text when none are. A later
// marker must still terminate the section when an earlier one is skipped, so
// every candidate is checked. An absent start marker yields the empty string.
func extractSection(text, start string, ends ...string) string {
	startIdx := strings.Index(text, start)
	if startIdx < 0 {
		return ""
	}
	rest := text[startIdx+len(start):]
	cut := len(rest)
	for _, end := range ends {
		if endIdx := strings.Index(rest, end); endIdx >= 0 && endIdx < cut {
			cut = endIdx
		}
	}
	return strings.TrimSpace(rest[:cut])
}

// parseToolCall matches the "TOOL_CALL: <name> {json args}" grammar. A tool
// name outside availableTools is not an error; the action is then treated as
// an ordinary non-tool action.
func parseToolCall(action string, availableTools []string) *ports.ToolCall {
	idx := strings.Index(action, MarkerToolCall)
	if idx < 0 {
		return nil
	}

	rest := strings.TrimSpace(action[idx+len(MarkerToolCall):])
	name := toolNameRe.FindString(rest)
	if name == "" {
		return nil
	}
	if !containsTool(availableTools, name) {
		return nil
	}

	params := map[string]any{}
	if payload := extractJSONObject(rest[len(name):]); payload != "" {
		if err := json.Unmarshal([]byte(payload), &params); err != nil {
			// Models routinely emit almost-JSON; repair before giving up.
			repaired, repairErr := jsonrepair.JSONRepair(payload)
			if repairErr != nil {
				return nil
			}
			if err := json.Unmarshal([]byte(repaired), &params); err != nil {
				return nil
			}
		}
	}

	return &ports.ToolCall{
		ID:         fmt.Sprintf("call_%s_%d", name, idx),
		Name:       name,
		Parameters: params,
	}
}

// extractJSONObject returns the first balanced {...} block in text, honoring
// string literals so braces inside quoted values do not end the block early.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func containsTool(tools []string, name string) bool {
	for _, t := range tools {
		if t == name {
			return true
		}
	}
	return false
}
