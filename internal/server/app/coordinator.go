// Package app hosts the server-side coordinator that turns task submissions
// into running agent loops and exposes their state and streams to transports.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/domain"
	"github.com/coderpwh1024/multi-agent-system/internal/logging"
	"github.com/coderpwh1024/multi-agent-system/internal/stream"
)

var (
	// ErrEmptyTask rejects submissions with no task description.
	ErrEmptyTask = errors.New("task description is required")
	// ErrCapacity rejects submissions when all agent slots are busy.
	ErrCapacity = errors.New("maximum concurrent agent tasks reached")
	// ErrTaskRunning rejects a client-supplied task id that is already
	// executing; admitting it would cross two loops on one stream.
	ErrTaskRunning = errors.New("task is already running")
)

const (
	defaultTaskTimeout   = 300 * time.Second
	defaultMaxConcurrent = 5
)

// Coordinator validates submissions, admits them against a concurrency
// budget, and runs each admitted task's loop on its own goroutine.
type Coordinator struct {
	engine      *domain.Engine
	store       domain.StateStore
	logger      logging.Logger
	taskTimeout time.Duration
	sem         *semaphore.Weighted

	mu         sync.Mutex
	publishers map[string]*stream.Publisher
}

// CoordinatorConfig bounds coordinator behavior.
type CoordinatorConfig struct {
	TaskTimeout         time.Duration
	MaxConcurrentAgents int
}

// NewCoordinator creates a coordinator over engine and store.
func NewCoordinator(engine *domain.Engine, store domain.StateStore, config CoordinatorConfig) *Coordinator {
	timeout := config.TaskTimeout
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	maxConcurrent := config.MaxConcurrentAgents
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &Coordinator{
		engine:      engine,
		store:       store,
		logger:      logging.NewComponentLogger("Coordinator"),
		taskTimeout: timeout,
		sem:         semaphore.NewWeighted(int64(maxConcurrent)),
		publishers:  make(map[string]*stream.Publisher),
	}
}

// Submit validates req, assigns a task id if absent, persists the Initialized
// state, and starts the execution loop. The returned subscription is attached
// before the first step runs, so it observes the full step sequence. Submit
// never blocks on a busy slot; it returns ErrCapacity instead.
func (c *Coordinator) Submit(ctx context.Context, req domain.TaskRequest) (string, *stream.Subscription, error) {
	if strings.TrimSpace(req.Task) == "" {
		return "", nil, ErrEmptyTask
	}
	if req.Role == "" {
		req.Role = domain.RoleCoordinator
	}
	if !req.Role.Valid() {
		return "", nil, fmt.Errorf("unknown agent role %q", req.Role)
	}
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}

	if !c.sem.TryAcquire(1) {
		return "", nil, ErrCapacity
	}

	// Reserve the stream slot first so a duplicate id is caught atomically;
	// a second loop on the same id would publish into the first one's stream.
	pub := stream.NewPublisher()
	c.mu.Lock()
	if _, exists := c.publishers[req.TaskID]; exists {
		c.mu.Unlock()
		c.sem.Release(1)
		return "", nil, fmt.Errorf("%w: %s", ErrTaskRunning, req.TaskID)
	}
	c.publishers[req.TaskID] = pub
	c.mu.Unlock()

	state := domain.NewTaskState(req.TaskID)
	if err := c.store.Save(ctx, state); err != nil {
		c.detach(req.TaskID)
		c.sem.Release(1)
		return "", nil, fmt.Errorf("persist initial state: %w", err)
	}

	sub := pub.Subscribe()

	// The loop outlives the submitting request: a client disconnect must not
	// cancel a running task, only the task timeout does.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.taskTimeout)
	go func() {
		defer cancel()
		defer c.sem.Release(1)
		defer c.detach(req.TaskID)
		c.engine.Run(runCtx, req, state, pub)
	}()

	c.logger.Info("task submitted: task=%s role=%s", req.TaskID, req.Role)
	return req.TaskID, sub, nil
}

// Attach returns a subscription to a running task's stream, or nil if the
// task is not currently executing.
func (c *Coordinator) Attach(taskID string) *stream.Subscription {
	c.mu.Lock()
	pub, ok := c.publishers[taskID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return pub.Subscribe()
}

// GetTask returns the latest persisted snapshot for taskID.
func (c *Coordinator) GetTask(ctx context.Context, taskID string) (*domain.TaskState, error) {
	return c.store.Get(ctx, taskID)
}

// ActiveTasks returns the ids of tasks currently executing.
func (c *Coordinator) ActiveTasks() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.publishers))
	for id := range c.publishers {
		ids = append(ids, id)
	}
	return ids
}

func (c *Coordinator) detach(taskID string) {
	c.mu.Lock()
	delete(c.publishers, taskID)
	c.mu.Unlock()
}
