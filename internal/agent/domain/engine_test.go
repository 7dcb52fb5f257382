package domain_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/domain"
	"github.com/coderpwh1024/multi-agent-system/internal/agent/ports"
	"github.com/coderpwh1024/multi-agent-system/internal/llm"
	"github.com/coderpwh1024/multi-agent-system/internal/parser"
	"github.com/coderpwh1024/multi-agent-system/internal/statestore"
	"github.com/coderpwh1024/multi-agent-system/internal/toolregistry"
)

type echoTool struct {
	name string
	err  error
}

func (t echoTool) Type() ports.ToolType               { return ports.ToolTypeSearch }
func (t echoTool) Name() string                       { return t.name }
func (t echoTool) Description() string                { return "echoes its parameters" }
func (t echoTool) ParameterSchema() map[string]any    { return map[string]any{"type": "object"} }
func (t echoTool) ValidateParams(map[string]any) bool { return true }

func (t echoTool) Execute(_ context.Context, params map[string]any) (any, error) {
	if t.err != nil {
		return nil, t.err
	}
	return map[string]any{"echo": params}, nil
}

// recordingListener captures the step sequence and completion signals.
type recordingListener struct {
	mu        sync.Mutex
	steps     []domain.Step
	completed bool
	failed    error
}

func (l *recordingListener) OnStep(step domain.Step) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, step)
}

func (l *recordingListener) Complete() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = true
}

func (l *recordingListener) Fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = err
}

func newTestEngine(t *testing.T, client ports.LLMClient, store domain.StateStore, tools ...ports.Tool) *domain.Engine {
	t.Helper()
	registry, err := toolregistry.New(tools...)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return domain.NewEngine(domain.EngineConfig{
		LLM:      client,
		Parser:   parser.New(),
		Registry: registry,
		Store:    store,
	})
}

func TestEngine_FinalAnswerCompletesTask(t *testing.T) {
	client := llm.NewMockClient("THINKING: trivial\nFINAL_ANSWER: 42")
	store := statestore.NewMemoryStore()
	engine := newTestEngine(t, client, store)

	listener := &recordingListener{}
	state := domain.NewTaskState("task-1")
	engine.Run(context.Background(), domain.TaskRequest{TaskID: "task-1", Task: "answer", Role: domain.RoleExecutor}, state, listener)

	if state.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", state.Status)
	}
	if state.Result != "42" {
		t.Errorf("expected result %q, got %q", "42", state.Result)
	}
	if len(state.Steps) != 1 || state.TotalIterations != 1 {
		t.Errorf("expected a single step, got steps=%d iterations=%d", len(state.Steps), state.TotalIterations)
	}
	if state.EndTime == nil {
		t.Error("terminal state missing end time")
	}
	if !listener.completed {
		t.Error("listener did not receive completion")
	}
	if len(listener.steps) != 1 {
		t.Errorf("listener saw %d steps, want 1", len(listener.steps))
	}

	persisted, err := store.Get(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("load persisted state: %v", err)
	}
	if persisted.Status != domain.StatusCompleted {
		t.Errorf("persisted status %s, want completed", persisted.Status)
	}
}

func TestEngine_BudgetExhaustionIsCompletion(t *testing.T) {
	client := llm.NewMockClient("THINKING: still going\nACTION: keep working")
	store := statestore.NewMemoryStore()
	engine := newTestEngine(t, client, store)

	listener := &recordingListener{}
	state := domain.NewTaskState("task-2")
	engine.Run(context.Background(), domain.TaskRequest{TaskID: "task-2", Task: "loop forever", Role: domain.RoleExecutor, MaxIterations: 3}, state, listener)

	if state.Status != domain.StatusCompleted {
		t.Fatalf("budget exhaustion must complete, not fail; got %s", state.Status)
	}
	if state.TotalIterations != 3 || len(state.Steps) != 3 {
		t.Errorf("expected exactly 3 iterations, got iterations=%d steps=%d", state.TotalIterations, len(state.Steps))
	}
	if state.Result != "maximum iterations reached without a final answer" {
		t.Errorf("unexpected result: %q", state.Result)
	}
	if !listener.completed {
		t.Error("listener did not receive completion")
	}
	if client.Calls() != 3 {
		t.Errorf("model invoked %d times, want 3", client.Calls())
	}
}

func TestEngine_ToolCallFeedsObservationBack(t *testing.T) {
	client := llm.NewMockClient(
		"THINKING: need the echo\nACTION: TOOL_CALL: echo {\"payload\": \"hello\"}",
		"FINAL_ANSWER: done",
	)
	store := statestore.NewMemoryStore()
	engine := newTestEngine(t, client, store, echoTool{name: "echo"})

	state := domain.NewTaskState("task-3")
	req := domain.TaskRequest{TaskID: "task-3", Task: "use the tool", Role: domain.RoleToolCaller, AvailableTools: []string{"echo"}}
	engine.Run(context.Background(), req, state, nil)

	if state.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", state.Status)
	}
	if len(state.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(state.Steps))
	}

	first := state.Steps[0]
	if first.Status != domain.StatusExecuting {
		t.Errorf("tool step status %s, want executing", first.Status)
	}
	if first.ToolCall == nil || !first.ToolCall.Success {
		t.Fatalf("tool call not recorded as successful: %+v", first.ToolCall)
	}
	if !strings.Contains(first.Observation, "hello") {
		t.Errorf("observation missing tool result: %q", first.Observation)
	}

	// The observation must have been folded into the next model call.
	last := client.LastMessages()
	found := false
	for _, msg := range last {
		if msg.Role == ports.RoleUser && strings.HasPrefix(msg.Content, "Observation: ") {
			found = true
		}
	}
	if !found {
		t.Error("observation turn missing from follow-up conversation")
	}
}

func TestEngine_UnknownToolIsNonFatal(t *testing.T) {
	client := llm.NewMockClient(
		"ACTION: TOOL_CALL: ghost {\"x\": 1}",
		"FINAL_ANSWER: recovered",
	)
	store := statestore.NewMemoryStore()
	engine := newTestEngine(t, client, store)

	state := domain.NewTaskState("task-4")
	// "ghost" is allowed for the task but absent from the registry, so the
	// dispatcher reports a structured failure and the loop continues.
	req := domain.TaskRequest{TaskID: "task-4", Task: "call a ghost", Role: domain.RoleToolCaller, AvailableTools: []string{"ghost"}}
	engine.Run(context.Background(), req, state, nil)

	if state.Status != domain.StatusCompleted {
		t.Fatalf("unknown tool must not fail the task, got %s", state.Status)
	}
	first := state.Steps[0]
	if first.Status != domain.StatusExecuting {
		t.Errorf("dispatch step status %s, want executing", first.Status)
	}
	if first.ToolCall.Success {
		t.Error("dispatch to unknown tool recorded as success")
	}
	if !strings.Contains(first.Observation, `"success":false`) {
		t.Errorf("observation is not a structured failure: %q", first.Observation)
	}
	if state.Result != "recovered" {
		t.Errorf("unexpected result: %q", state.Result)
	}
}

func TestEngine_ToolErrorIsNonFatal(t *testing.T) {
	client := llm.NewMockClient(
		"ACTION: TOOL_CALL: broken {}",
		"FINAL_ANSWER: moved on",
	)
	engine := newTestEngine(t, client, statestore.NewMemoryStore(),
		echoTool{name: "broken", err: errors.New("disk on fire")})

	state := domain.NewTaskState("task-5")
	req := domain.TaskRequest{TaskID: "task-5", Task: "break", Role: domain.RoleToolCaller, AvailableTools: []string{"broken"}}
	engine.Run(context.Background(), req, state, nil)

	if state.Status != domain.StatusCompleted {
		t.Fatalf("tool error must not fail the task, got %s", state.Status)
	}
	if !strings.Contains(state.Steps[0].Observation, "disk on fire") {
		t.Errorf("observation missing tool error: %q", state.Steps[0].Observation)
	}
}

func TestEngine_ModelFailureFailsTask(t *testing.T) {
	client := llm.NewMockClient().PushError(errors.New("backend unreachable"))
	store := statestore.NewMemoryStore()
	engine := newTestEngine(t, client, store)

	listener := &recordingListener{}
	state := domain.NewTaskState("task-6")
	engine.Run(context.Background(), domain.TaskRequest{TaskID: "task-6", Task: "anything", Role: domain.RoleExecutor}, state, listener)

	if state.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", state.Status)
	}
	if !strings.Contains(state.ErrorMessage, "execution failed: backend unreachable") {
		t.Errorf("unexpected error message: %q", state.ErrorMessage)
	}
	if len(state.Steps) != 1 {
		t.Errorf("expected exactly one failed step, got %d", len(state.Steps))
	}
	if !listener.completed {
		t.Error("stream must still complete after a task failure")
	}
}

type failingStore struct{}

func (failingStore) Save(context.Context, *domain.TaskState) error {
	return errors.New("store offline")
}
func (failingStore) Get(context.Context, string) (*domain.TaskState, error) {
	return nil, errors.New("store offline")
}

func TestEngine_PersistenceFailureIsIgnored(t *testing.T) {
	client := llm.NewMockClient("FINAL_ANSWER: fine")
	engine := newTestEngine(t, client, failingStore{})

	state := domain.NewTaskState("task-7")
	engine.Run(context.Background(), domain.TaskRequest{TaskID: "task-7", Task: "persist me", Role: domain.RoleExecutor}, state, nil)

	if state.Status != domain.StatusCompleted {
		t.Fatalf("persistence failure must not affect execution, got %s", state.Status)
	}
	if state.Result != "fine" {
		t.Errorf("unexpected result: %q", state.Result)
	}
}

func TestEngine_StepsMatchTotalIterations(t *testing.T) {
	client := llm.NewMockClient(
		"ACTION: thinking out loud",
		"ACTION: still pondering",
		"FINAL_ANSWER: there",
	)
	engine := newTestEngine(t, client, statestore.NewMemoryStore())

	state := domain.NewTaskState("task-8")
	engine.Run(context.Background(), domain.TaskRequest{TaskID: "task-8", Task: "count steps", Role: domain.RoleExecutor}, state, nil)

	if len(state.Steps) != state.TotalIterations {
		t.Errorf("steps=%d totalIterations=%d, want equal", len(state.Steps), state.TotalIterations)
	}
	for i, step := range state.Steps {
		if step.StepNumber != i+1 {
			t.Errorf("step %d has number %d", i, step.StepNumber)
		}
	}
}

func TestEngine_StepTimestampsAreSet(t *testing.T) {
	client := llm.NewMockClient(
		`TOOL_CALL: echo {"q": "hi"}`,
		"FINAL_ANSWER: done",
	)
	engine := newTestEngine(t, client, statestore.NewMemoryStore(), echoTool{name: "echo"})

	state := domain.NewTaskState("task-9")
	engine.Run(context.Background(), domain.TaskRequest{
		TaskID:         "task-9",
		Task:           "stamp every step",
		Role:           domain.RoleExecutor,
		AvailableTools: []string{"echo"},
	}, state, nil)

	if len(state.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(state.Steps))
	}
	for _, step := range state.Steps {
		if step.StartTime.IsZero() {
			t.Errorf("step %d missing start time", step.StepNumber)
		}
		if step.EndTime.IsZero() {
			t.Errorf("step %d missing end time", step.StepNumber)
		}
		if step.EndTime.Before(step.StartTime) {
			t.Errorf("step %d ends before it starts: %v < %v", step.StepNumber, step.EndTime, step.StartTime)
		}
	}
}

func TestEngine_FailedStepHasEndTime(t *testing.T) {
	client := llm.NewMockClient().PushError(errors.New("backend down"))
	engine := newTestEngine(t, client, statestore.NewMemoryStore())

	state := domain.NewTaskState("task-10")
	engine.Run(context.Background(), domain.TaskRequest{TaskID: "task-10", Task: "fail early", Role: domain.RoleExecutor}, state, nil)

	if len(state.Steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(state.Steps))
	}
	if state.Steps[0].EndTime.IsZero() {
		t.Error("failed step missing end time")
	}
}
