package ports

// ParsedResponse is the structured view of one raw model completion.
type ParsedResponse struct {
	// Thinking is the text of the THINKING section, empty when absent.
	Thinking string

	// Action is the text of the ACTION section, empty when absent.
	Action string

	// ToolCall is non-nil when the action matched the tool-call grammar and
	// named a tool the task is allowed to use.
	ToolCall *ToolCall

	// FinalAnswer holds the text following the final-answer marker.
	FinalAnswer string

	// IsFinal reports whether the final-answer marker was present.
	IsFinal bool
}

// ResponseParser segments raw model text into a ParsedResponse.
//
// Parsing is pure and idempotent: the same input always yields the same
// structured result, and malformed input degrades to an empty parse rather
// than an error.
type ResponseParser interface {
	Parse(content string, availableTools []string) ParsedResponse
}
