package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/domain"
	"github.com/coderpwh1024/multi-agent-system/internal/agent/ports"
	"github.com/coderpwh1024/multi-agent-system/internal/llm"
	"github.com/coderpwh1024/multi-agent-system/internal/parser"
	"github.com/coderpwh1024/multi-agent-system/internal/statestore"
	"github.com/coderpwh1024/multi-agent-system/internal/toolregistry"
)

func newCoordinator(t *testing.T, client ports.LLMClient, config CoordinatorConfig) (*Coordinator, *statestore.MemoryStore) {
	t.Helper()
	registry, err := toolregistry.New()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	store := statestore.NewMemoryStore()
	engine := domain.NewEngine(domain.EngineConfig{
		LLM:      client,
		Parser:   parser.New(),
		Registry: registry,
		Store:    store,
	})
	return NewCoordinator(engine, store, config), store
}

func drain(t *testing.T, sub interface{ Steps() <-chan domain.Step }) []domain.Step {
	t.Helper()
	var steps []domain.Step
	timeout := time.After(3 * time.Second)
	for {
		select {
		case step, ok := <-sub.Steps():
			if !ok {
				return steps
			}
			steps = append(steps, step)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func TestCoordinator_SubmitRunsToCompletion(t *testing.T) {
	coord, store := newCoordinator(t, llm.NewMockClient("FINAL_ANSWER: ok"), CoordinatorConfig{})

	taskID, sub, err := coord.Submit(context.Background(), domain.TaskRequest{Task: "say ok"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if taskID == "" {
		t.Fatal("no task id assigned")
	}

	steps := drain(t, sub)
	if len(steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(steps))
	}

	state, err := store.Get(context.Background(), taskID)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if state.Status != domain.StatusCompleted || state.Result != "ok" {
		t.Errorf("unexpected final state: %+v", state)
	}
}

func TestCoordinator_RejectsEmptyTask(t *testing.T) {
	coord, _ := newCoordinator(t, llm.NewMockClient(), CoordinatorConfig{})

	if _, _, err := coord.Submit(context.Background(), domain.TaskRequest{Task: "   "}); !errors.Is(err, ErrEmptyTask) {
		t.Errorf("got %v, want ErrEmptyTask", err)
	}
}

func TestCoordinator_RejectsUnknownRole(t *testing.T) {
	coord, _ := newCoordinator(t, llm.NewMockClient(), CoordinatorConfig{})

	_, _, err := coord.Submit(context.Background(), domain.TaskRequest{Task: "x", Role: domain.AgentRole("wizard")})
	if err == nil {
		t.Error("unknown role accepted")
	}
}

// blockingClient holds every completion until released, keeping tasks active.
type blockingClient struct {
	release chan struct{}
}

func (c *blockingClient) Model() string { return "blocking" }

func (c *blockingClient) Complete(ctx context.Context, _ ports.CompletionRequest) (*ports.CompletionResponse, error) {
	select {
	case <-c.release:
		return &ports.CompletionResponse{Content: "FINAL_ANSWER: released"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCoordinator_CapacityLimit(t *testing.T) {
	client := &blockingClient{release: make(chan struct{})}
	coord, _ := newCoordinator(t, client, CoordinatorConfig{MaxConcurrentAgents: 1})

	_, first, err := coord.Submit(context.Background(), domain.TaskRequest{Task: "occupy the slot"})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	if _, _, err := coord.Submit(context.Background(), domain.TaskRequest{Task: "overflow"}); !errors.Is(err, ErrCapacity) {
		t.Errorf("got %v, want ErrCapacity", err)
	}

	close(client.release)
	drain(t, first)

	// The slot frees once the first task terminates.
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, sub, err := coord.Submit(context.Background(), domain.TaskRequest{Task: "after release"})
		if err == nil {
			drain(t, sub)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("slot never released: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCoordinator_InitializedStateVisibleWhileRunning(t *testing.T) {
	client := &blockingClient{release: make(chan struct{})}
	coord, store := newCoordinator(t, client, CoordinatorConfig{})

	taskID, sub, err := coord.Submit(context.Background(), domain.TaskRequest{Task: "long haul"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	state, err := store.Get(context.Background(), taskID)
	if err != nil {
		t.Fatalf("state must be persisted before the loop starts: %v", err)
	}
	if state.Status.Terminal() {
		t.Errorf("running task reported terminal status %s", state.Status)
	}

	close(client.release)
	drain(t, sub)
}

func TestCoordinator_Attach(t *testing.T) {
	client := &blockingClient{release: make(chan struct{})}
	coord, _ := newCoordinator(t, client, CoordinatorConfig{})

	taskID, sub, err := coord.Submit(context.Background(), domain.TaskRequest{Task: "streamable"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	attached := coord.Attach(taskID)
	if attached == nil {
		t.Fatal("attach to running task returned nil")
	}
	if coord.Attach("nope") != nil {
		t.Error("attach to unknown task returned a subscription")
	}

	close(client.release)
	stepsA := drain(t, sub)
	stepsB := drain(t, attached)
	if len(stepsA) != len(stepsB) {
		t.Errorf("subscribers saw different sequences: %d vs %d", len(stepsA), len(stepsB))
	}

	// Once terminal, the publisher is detached.
	deadline := time.Now().Add(2 * time.Second)
	for coord.Attach(taskID) != nil {
		if time.Now().After(deadline) {
			t.Fatal("publisher never detached after completion")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCoordinator_ClientContextDoesNotCancelTask(t *testing.T) {
	client := &blockingClient{release: make(chan struct{})}
	coord, store := newCoordinator(t, client, CoordinatorConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	taskID, sub, err := coord.Submit(ctx, domain.TaskRequest{Task: "outlive the request"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Simulate the submitting HTTP request going away.
	cancel()
	close(client.release)
	drain(t, sub)

	state, err := store.Get(context.Background(), taskID)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if state.Status != domain.StatusCompleted {
		t.Errorf("task cancelled by client disconnect: %s", state.Status)
	}
}

func TestCoordinator_DuplicateRunningTaskIDRejected(t *testing.T) {
	client := &blockingClient{release: make(chan struct{})}
	coord, _ := newCoordinator(t, client, CoordinatorConfig{})

	req := domain.TaskRequest{TaskID: "pinned-id", Task: "first run"}
	_, first, err := coord.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	if _, _, err := coord.Submit(context.Background(), domain.TaskRequest{TaskID: "pinned-id", Task: "second run"}); !errors.Is(err, ErrTaskRunning) {
		t.Errorf("got %v, want ErrTaskRunning", err)
	}

	// The rejection must not disturb the first run's stream.
	if coord.Attach("pinned-id") == nil {
		t.Error("first run's publisher was displaced")
	}

	close(client.release)
	drain(t, first)

	// A terminated id may be reused.
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, sub, err := coord.Submit(context.Background(), domain.TaskRequest{TaskID: "pinned-id", Task: "rerun"})
		if err == nil {
			drain(t, sub)
			break
		}
		if !errors.Is(err, ErrTaskRunning) {
			t.Fatalf("rerun rejected with %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("id never freed after completion")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
