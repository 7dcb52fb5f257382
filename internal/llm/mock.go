package llm

import (
	"context"
	"sync"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/ports"
)

// MockClient replays a fixed script of replies, one per Complete call. When
// the script runs out it keeps returning the last entry. Errors interleave
// with replies via PushError.
type MockClient struct {
	mu      sync.Mutex
	script  []scriptEntry
	cursor  int
	history [][]ports.Message
}

type scriptEntry struct {
	content string
	err     error
}

// NewMockClient builds a client that replies with the given texts in order.
func NewMockClient(replies ...string) *MockClient {
	c := &MockClient{}
	for _, reply := range replies {
		c.script = append(c.script, scriptEntry{content: reply})
	}
	return c
}

// PushError appends a failing turn to the script.
func (c *MockClient) PushError(err error) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, scriptEntry{err: err})
	return c
}

func (c *MockClient) Model() string {
	return "mock"
}

func (c *MockClient) Complete(_ context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history, req.Messages)

	if len(c.script) == 0 {
		return &ports.CompletionResponse{Content: ""}, nil
	}
	entry := c.script[c.cursor]
	if c.cursor < len(c.script)-1 {
		c.cursor++
	}
	if entry.err != nil {
		return nil, entry.err
	}
	return &ports.CompletionResponse{
		Content: entry.content,
		Usage:   ports.TokenUsage{PromptTokens: len(req.Messages), CompletionTokens: 1, TotalTokens: len(req.Messages) + 1},
	}, nil
}

// Calls returns how many times Complete was invoked.
func (c *MockClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// LastMessages returns the history passed to the most recent Complete call.
func (c *MockClient) LastMessages() []ports.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history) == 0 {
		return nil
	}
	return c.history[len(c.history)-1]
}
