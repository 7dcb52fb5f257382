package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/domain"
	"github.com/coderpwh1024/multi-agent-system/internal/logging"
	"github.com/coderpwh1024/multi-agent-system/internal/server/app"
	"github.com/coderpwh1024/multi-agent-system/internal/stream"
)

// AgentHandler serves task submission, streaming, and lookup.
type AgentHandler struct {
	coordinator *app.Coordinator
	logger      logging.Logger
	startTime   time.Time
}

// NewAgentHandler creates the handler over coordinator.
func NewAgentHandler(coordinator *app.Coordinator) *AgentHandler {
	return &AgentHandler{
		coordinator: coordinator,
		logger:      logging.NewComponentLogger("AgentHandler"),
		startTime:   time.Now(),
	}
}

// Execute submits a task and blocks until it reaches a terminal status,
// returning the final state.
func (h *AgentHandler) Execute(c *gin.Context) {
	var req domain.TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	taskID, sub, err := h.coordinator.Submit(c.Request.Context(), req)
	if err != nil {
		h.submitError(c, err)
		return
	}

	// Drain the stream; the loop has finished once it closes.
	for range sub.Steps() {
	}

	state, err := h.coordinator.GetTask(c.Request.Context(), taskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, state)
}

// ExecuteStream submits a task and streams its steps as server-sent events.
// Each step is one frame: id is the step number, event type is "step", data
// is the step JSON. A final "complete" frame carries the terminal state.
// Disconnecting does not cancel the task; the loop runs to termination.
func (h *AgentHandler) ExecuteStream(c *gin.Context) {
	var req domain.TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Stream = true

	taskID, sub, err := h.coordinator.Submit(c.Request.Context(), req)
	if err != nil {
		h.submitError(c, err)
		return
	}

	h.streamSteps(c, taskID, sub)
}

// AttachStream re-attaches to a running task's live stream. Steps emitted
// before attach are not replayed; use GetTask for the history.
func (h *AgentHandler) AttachStream(c *gin.Context) {
	taskID := c.Param("taskId")
	sub := h.coordinator.Attach(taskID)
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("task %s is not running", taskID)})
		return
	}
	h.streamSteps(c, taskID, sub)
}

func (h *AgentHandler) streamSteps(c *gin.Context, taskID string, sub *stream.Subscription) {
	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	h.logger.Info("SSE stream opened: task=%s", taskID)

	for {
		select {
		case step, ok := <-sub.Steps():
			if !ok {
				h.writeComplete(c, taskID, sub.Err())
				return
			}
			data, err := json.Marshal(step)
			if err != nil {
				h.logger.Error("failed to serialize step: task=%s err=%v", taskID, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: step\ndata: %s\n\n", step.StepNumber, data); err != nil {
				h.logger.Error("failed to write SSE frame: task=%s err=%v", taskID, err)
				sub.Cancel()
				return
			}
			w.Flush()

		case <-c.Request.Context().Done():
			h.logger.Info("SSE client disconnected: task=%s", taskID)
			sub.Cancel()
			return
		}
	}
}

// writeComplete emits the terminal frame after the step stream closes.
func (h *AgentHandler) writeComplete(c *gin.Context, taskID string, streamErr error) {
	w := c.Writer
	if streamErr != nil {
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", jsonError(streamErr))
		w.Flush()
		return
	}

	state, err := h.coordinator.GetTask(c.Request.Context(), taskID)
	if err != nil {
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", jsonError(err))
		w.Flush()
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", jsonError(err))
		w.Flush()
		return
	}
	fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
	w.Flush()
}

// GetTask returns the latest persisted state snapshot.
func (h *AgentHandler) GetTask(c *gin.Context) {
	taskID := c.Param("taskId")
	state, err := h.coordinator.GetTask(c.Request.Context(), taskID)
	if errors.Is(err, domain.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("task not found: %s", taskID)})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, state)
}

// Health reports liveness and the current active task count.
func (h *AgentHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"activeTasks": len(h.coordinator.ActiveTasks()),
		"uptime":      time.Since(h.startTime).Round(time.Second).String(),
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}

func (h *AgentHandler) submitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrCapacity):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, app.ErrTaskRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func jsonError(err error) []byte {
	data, _ := json.Marshal(gin.H{"error": err.Error()})
	return data
}
