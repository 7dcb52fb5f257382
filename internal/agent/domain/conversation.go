package domain

import "github.com/coderpwh1024/multi-agent-system/internal/agent/ports"

// Conversation maintains the ordered message history fed to the model across
// iterations. It is owned by a single execution loop and is not safe for
// concurrent use.
type Conversation struct {
	messages []ports.Message
}

// NewConversation seeds the history with the system prompt and the user task.
func NewConversation(systemPrompt, task string) *Conversation {
	return &Conversation{
		messages: []ports.Message{
			{Role: ports.RoleSystem, Content: systemPrompt},
			{Role: ports.RoleUser, Content: task},
		},
	}
}

// AppendAssistant records the model's action as an assistant turn.
func (c *Conversation) AppendAssistant(content string) {
	if content == "" {
		return
	}
	c.messages = append(c.messages, ports.Message{Role: ports.RoleAssistant, Content: content})
}

// AppendObservation folds an observation back into the history as a user turn.
func (c *Conversation) AppendObservation(observation string) {
	if observation == "" {
		return
	}
	c.messages = append(c.messages, ports.Message{
		Role:    ports.RoleUser,
		Content: "Observation: " + observation,
	})
}

// Messages returns the history in insertion order. The returned slice is a
// copy; callers may not mutate the conversation through it.
func (c *Conversation) Messages() []ports.Message {
	out := make([]ports.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages in the history.
func (c *Conversation) Len() int {
	return len(c.messages)
}
