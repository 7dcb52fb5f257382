package domain

import "context"

// StepListener receives every Step produced by an execution loop, in order.
// The engine fires Complete exactly once after the terminal step; Fail is
// reserved for infrastructure breakage, not task failures, which arrive as an
// ordinary terminal Step.
type StepListener interface {
	OnStep(step Step)
	Complete()
	Fail(err error)
}

type nopListener struct{}

func (nopListener) OnStep(Step) {}
func (nopListener) Complete()   {}
func (nopListener) Fail(error)  {}

// NopListener returns a listener that discards everything.
func NopListener() StepListener {
	return nopListener{}
}

// StateStore persists whole TaskState snapshots keyed by task id.
type StateStore interface {
	// Save replaces the stored snapshot for state.TaskID.
	Save(ctx context.Context, state *TaskState) error

	// Get returns the latest snapshot or ErrTaskNotFound.
	Get(ctx context.Context, taskID string) (*TaskState, error)
}

// AuditSink receives terminal task states for archival. Handoff is
// fire-and-forget; archival failures never affect the task.
type AuditSink interface {
	Archive(ctx context.Context, state *TaskState) error
}
