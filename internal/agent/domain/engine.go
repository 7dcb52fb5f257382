package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/ports"
	"github.com/coderpwh1024/multi-agent-system/internal/logging"
)

// EngineMetrics receives execution telemetry. All methods must be cheap and
// non-blocking; a nil collector disables instrumentation.
type EngineMetrics interface {
	TaskStarted(ctx context.Context)
	TaskFinished(ctx context.Context, status AgentStatus)
	RecordStep(ctx context.Context, status AgentStatus)
	RecordLLMRequest(ctx context.Context, model string, duration time.Duration, usage ports.TokenUsage, err error)
	RecordToolExecution(ctx context.Context, tool string, duration time.Duration, success bool)
}

// EngineConfig captures the dependencies and defaults for an Engine.
type EngineConfig struct {
	LLM           ports.LLMClient
	Parser        ports.ResponseParser
	Registry      ports.ToolRegistry
	Store         StateStore
	Audit         AuditSink
	Metrics       EngineMetrics
	Logger        logging.Logger
	MaxIterations int
	Temperature   float64
	MaxTokens     int
}

// Engine drives the Think-Act-Observe loop for one task at a time. An Engine
// is stateless across tasks and safe to share between concurrently running
// loops; all per-task state lives in the TaskState it is handed.
type Engine struct {
	llm           ports.LLMClient
	parser        ports.ResponseParser
	registry      ports.ToolRegistry
	store         StateStore
	audit         AuditSink
	metrics       EngineMetrics
	logger        logging.Logger
	maxIterations int
	temperature   float64
	maxTokens     int
	now           func() time.Time
}

const (
	defaultMaxIterations = 10
	defaultMaxTokens     = 4096

	budgetExhaustedResult = "maximum iterations reached without a final answer"
)

// NewEngine constructs an execution loop controller.
func NewEngine(config EngineConfig) *Engine {
	maxIterations := config.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Engine{
		llm:           config.LLM,
		parser:        config.Parser,
		registry:      config.Registry,
		store:         config.Store,
		audit:         config.Audit,
		metrics:       config.Metrics,
		logger:        logging.OrNop(config.Logger),
		maxIterations: maxIterations,
		temperature:   config.Temperature,
		maxTokens:     maxTokens,
		now:           time.Now,
	}
}

// NewTaskState returns the Initialized state record created at submission.
func NewTaskState(taskID string) *TaskState {
	return &TaskState{
		TaskID:    taskID,
		Status:    StatusInitialized,
		Steps:     []Step{},
		StartTime: time.Now(),
	}
}

// Run executes the loop for req, mutating state as its sole owner and
// publishing every step to listener. It blocks until the task reaches a
// terminal status and always leaves state terminal on return. Stream
// disconnects do not cancel a run; callers that want the loop to survive
// subscriber detach pass a context that outlives the request.
func (e *Engine) Run(ctx context.Context, req TaskRequest, state *TaskState, listener StepListener) *TaskState {
	if listener == nil {
		listener = NopListener()
	}
	if e.metrics != nil {
		e.metrics.TaskStarted(ctx)
	}

	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = e.maxIterations
	}

	systemPrompt := BuildSystemPrompt(req.Role, req.AvailableTools, e.registry)
	conversation := NewConversation(systemPrompt, req.Task)

	e.logger.Info("starting agent loop: task=%s role=%s maxIterations=%d tools=%d",
		state.TaskID, req.Role, maxIterations, len(req.AvailableTools))

	for i := 1; i <= maxIterations; i++ {
		step := e.executeStep(ctx, i, conversation, req)

		listener.OnStep(step)
		state.Steps = append(state.Steps, step)
		state.TotalIterations = i
		state.Status = step.Status
		e.persist(ctx, state)

		if step.Status.Terminal() {
			e.finalize(ctx, state, step, listener)
			return state
		}

		conversation.AppendAssistant(step.Action)
		conversation.AppendObservation(step.Observation)
	}

	// Budget exhaustion is a normal completion, not a failure.
	state.Status = StatusCompleted
	state.Result = budgetExhaustedResult
	end := e.now()
	state.EndTime = &end
	e.persist(ctx, state)
	e.archive(ctx, state)
	if e.metrics != nil {
		e.metrics.TaskFinished(ctx, state.Status)
	}
	listener.Complete()
	e.logger.Info("agent loop exhausted budget: task=%s iterations=%d", state.TaskID, state.TotalIterations)
	return state
}

// executeStep produces exactly one Step. Any failure while producing it --
// model invocation, result serialization, an uncaught dispatcher error --
// is folded into a Failed step rather than propagated.
func (e *Engine) executeStep(ctx context.Context, stepNumber int, conversation *Conversation, req TaskRequest) (step Step) {
	step = Step{
		StepNumber: stepNumber,
		Status:     StatusThinking,
		StartTime:  e.now(),
	}
	// Named return: the deferred assignment must land on the value the
	// caller receives, on every return path.
	defer func() {
		step.EndTime = e.now()
	}()

	e.logger.Debug("executing step %d: task=%s", stepNumber, req.TaskID)

	llmStart := e.now()
	resp, err := e.llm.Complete(ctx, ports.CompletionRequest{
		Messages:    conversation.Messages(),
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
		Stream:      req.Stream,
	})
	if e.metrics != nil {
		var usage ports.TokenUsage
		if resp != nil {
			usage = resp.Usage
		}
		e.metrics.RecordLLMRequest(ctx, e.llm.Model(), e.now().Sub(llmStart), usage, err)
	}
	if err != nil {
		e.logger.Error("model invocation failed: task=%s step=%d err=%v", req.TaskID, stepNumber, err)
		step.Status = StatusFailed
		step.Observation = "execution failed: " + err.Error()
		e.recordStep(ctx, step.Status)
		return step
	}

	parsed := e.parser.Parse(resp.Content, req.AvailableTools)
	step.Thinking = parsed.Thinking
	step.Action = parsed.Action

	switch {
	case parsed.ToolCall != nil:
		step.Status = StatusExecuting
		step.ToolCall = parsed.ToolCall

		toolStart := e.now()
		result := e.registry.Dispatch(ctx, parsed.ToolCall)
		if e.metrics != nil {
			e.metrics.RecordToolExecution(ctx, parsed.ToolCall.Name, e.now().Sub(toolStart), parsed.ToolCall.Success)
		}

		observation, err := json.Marshal(result)
		if err != nil {
			e.logger.Error("tool result serialization failed: task=%s tool=%s err=%v", req.TaskID, parsed.ToolCall.Name, err)
			step.Status = StatusFailed
			step.Observation = "execution failed: serialize tool result: " + err.Error()
			e.recordStep(ctx, step.Status)
			return step
		}
		step.Observation = string(observation)

	case parsed.IsFinal:
		step.Status = StatusCompleted
		step.Observation = parsed.FinalAnswer

	default:
		// Neither a tool call nor a final answer: fold the raw reply back
		// into the conversation and keep iterating.
		step.Status = StatusWaiting
		step.Observation = resp.Content
	}

	e.recordStep(ctx, step.Status)
	return step
}

func (e *Engine) finalize(ctx context.Context, state *TaskState, terminal Step, listener StepListener) {
	end := e.now()
	state.EndTime = &end
	switch terminal.Status {
	case StatusCompleted:
		state.Result = terminal.Observation
	case StatusFailed:
		state.ErrorMessage = terminal.Observation
	}
	e.persist(ctx, state)
	e.archive(ctx, state)
	if e.metrics != nil {
		e.metrics.TaskFinished(ctx, state.Status)
	}
	listener.Complete()
	e.logger.Info("agent loop finished: task=%s status=%s iterations=%d",
		state.TaskID, state.Status, state.TotalIterations)
}

// persist writes the current snapshot. Persistence failures are logged and
// swallowed; the in-memory state and the live stream stay authoritative.
func (e *Engine) persist(ctx context.Context, state *TaskState) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(ctx, state); err != nil {
		e.logger.Warn("failed to persist task state: task=%s err=%v", state.TaskID, err)
	}
}

// archive hands the terminal state to the audit sink, fire-and-forget.
func (e *Engine) archive(ctx context.Context, state *TaskState) {
	if e.audit == nil {
		return
	}
	snapshot := state.Clone()
	go func() {
		if err := e.audit.Archive(context.WithoutCancel(ctx), snapshot); err != nil {
			e.logger.Warn("failed to archive task record: task=%s err=%v", snapshot.TaskID, err)
		}
	}()
}

func (e *Engine) recordStep(ctx context.Context, status AgentStatus) {
	if e.metrics != nil {
		e.metrics.RecordStep(ctx, status)
	}
}
