package domain

import (
	"strings"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/ports"
)

// BuildSystemPrompt assembles the system prompt for a task: role preamble,
// the Think/Act/Observe/Reflect protocol, the catalogue of available tools
// and the reply-format contract the parser understands. Tool names that are
// not present in the registry are silently omitted from the catalogue.
func BuildSystemPrompt(role AgentRole, availableTools []string, registry ports.ToolRegistry) string {
	var b strings.Builder

	b.WriteString("You are a ")
	b.WriteString(role.DisplayName())
	b.WriteString(".\n")
	b.WriteString(role.Description())
	b.WriteString("\n\n")

	b.WriteString("Work through the task in the following cycle:\n")
	b.WriteString("1. Think: analyze the current task and form a plan\n")
	b.WriteString("2. Act: carry out a concrete operation or invoke a tool\n")
	b.WriteString("3. Observe: examine the result of the action\n")
	b.WriteString("4. Reflect: adjust your approach based on what you observed\n\n")

	if registry != nil && len(availableTools) > 0 {
		catalog := make([]string, 0, len(availableTools))
		for _, name := range availableTools {
			tool, err := registry.Get(name)
			if err != nil {
				continue
			}
			catalog = append(catalog, "- "+tool.Name()+": "+tool.Description())
		}
		if len(catalog) > 0 {
			b.WriteString("Available tools:\n")
			b.WriteString(strings.Join(catalog, "\n"))
			b.WriteString("\n\n")
		}
	}

	b.WriteString("Reply using exactly this format:\n")
	b.WriteString("THINKING: [your reasoning]\n")
	b.WriteString("ACTION: [your action]\n")
	b.WriteString("To invoke a tool, make the action line: TOOL_CALL: <tool_name> {\"param\": \"value\"}\n")
	b.WriteString("When the task is complete, reply with: FINAL_ANSWER: [your final answer]\n")

	return b.String()
}
