package domain

import (
	"time"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/ports"
)

// TaskRequest is the immutable client submission.
type TaskRequest struct {
	TaskID         string         `json:"taskId,omitempty"`
	Task           string         `json:"task"`
	Role           AgentRole      `json:"role"`
	Context        map[string]any `json:"context,omitempty"`
	AvailableTools []string       `json:"availableTools,omitempty"`
	MaxIterations  int            `json:"maxIterations,omitempty"`
	Stream         bool           `json:"stream,omitempty"`
}

// Step is one iteration's complete thinking/action/observation record. It is
// immutable once produced.
type Step struct {
	StepNumber  int             `json:"stepNumber"`
	Status      AgentStatus     `json:"status"`
	Thinking    string          `json:"thinking,omitempty"`
	Action      string          `json:"action,omitempty"`
	ToolCall    *ports.ToolCall `json:"toolCall,omitempty"`
	Observation string          `json:"observation,omitempty"`
	StartTime   time.Time       `json:"startTime"`
	EndTime     time.Time       `json:"endTime"`
}

// TaskState is the latest known state of a task. It is owned and mutated by
// exactly one execution loop; everyone else reads snapshots through the state
// store.
type TaskState struct {
	TaskID          string      `json:"taskId"`
	Status          AgentStatus `json:"status"`
	Steps           []Step      `json:"steps"`
	Result          string      `json:"result,omitempty"`
	TotalIterations int         `json:"totalIterations"`
	StartTime       time.Time   `json:"startTime"`
	EndTime         *time.Time  `json:"endTime,omitempty"`
	ErrorMessage    string      `json:"errorMessage,omitempty"`
}

// Clone returns a deep copy suitable for handing across goroutine boundaries.
func (s *TaskState) Clone() *TaskState {
	if s == nil {
		return nil
	}
	out := *s
	out.Steps = make([]Step, len(s.Steps))
	copy(out.Steps, s.Steps)
	for i := range out.Steps {
		out.Steps[i].ToolCall = cloneToolCall(s.Steps[i].ToolCall)
	}
	if s.EndTime != nil {
		end := *s.EndTime
		out.EndTime = &end
	}
	return &out
}

func cloneToolCall(in *ports.ToolCall) *ports.ToolCall {
	if in == nil {
		return nil
	}
	out := *in
	if in.Parameters != nil {
		out.Parameters = make(map[string]any, len(in.Parameters))
		for k, v := range in.Parameters {
			out.Parameters[k] = v
		}
	}
	return &out
}
