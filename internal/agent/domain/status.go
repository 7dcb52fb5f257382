package domain

// AgentStatus tracks where a task is in its lifecycle. Transitions follow
// Initialized -> Thinking -> {Executing | Waiting} -> ... -> Completed | Failed.
// A terminal status is never left.
type AgentStatus string

const (
	StatusInitialized AgentStatus = "initialized"
	StatusThinking    AgentStatus = "thinking"
	StatusExecuting   AgentStatus = "executing"
	StatusWaiting     AgentStatus = "waiting"
	StatusCompleted   AgentStatus = "completed"
	StatusFailed      AgentStatus = "failed"
)

// Terminal reports whether no further steps may follow this status.
func (s AgentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status value.
func (s AgentStatus) Valid() bool {
	switch s {
	case StatusInitialized, StatusThinking, StatusExecuting,
		StatusWaiting, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

func (s AgentStatus) String() string {
	return string(s)
}

// CanTransition reports whether moving from s to next follows the allowed
// transition graph. Terminal statuses admit no successor.
func (s AgentStatus) CanTransition(next AgentStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StatusInitialized:
		return next == StatusThinking || next == StatusFailed
	case StatusThinking:
		return next == StatusExecuting || next == StatusWaiting ||
			next == StatusCompleted || next == StatusFailed
	case StatusExecuting, StatusWaiting:
		return next == StatusThinking || next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}
