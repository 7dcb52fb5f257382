package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/domain"
	"github.com/coderpwh1024/multi-agent-system/internal/agent/ports"
)

// MetricsCollector manages all execution metrics for the agent engine.
type MetricsCollector struct {
	meter metric.Meter

	// LLM metrics
	llmRequests     metric.Int64Counter
	llmTokensInput  metric.Int64Counter
	llmTokensOutput metric.Int64Counter
	llmLatency      metric.Float64Histogram

	// Tool metrics
	toolExecutions metric.Int64Counter
	toolDuration   metric.Float64Histogram

	// Task metrics
	tasksActive   metric.Int64UpDownCounter
	tasksFinished metric.Int64Counter
	stepsByStatus metric.Int64Counter
}

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// NewMetricsCollector creates a metrics collector backed by a Prometheus
// exporter registered on the default registry. With Enabled false all record
// methods are no-ops.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter("agentd")

	llmRequests, err := meter.Int64Counter(
		"agentd.llm.requests.total",
		metric.WithDescription("Total number of LLM requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_requests counter: %w", err)
	}

	llmTokensInput, err := meter.Int64Counter(
		"agentd.llm.tokens.input",
		metric.WithDescription("Total input tokens sent to the LLM"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_tokens_input counter: %w", err)
	}

	llmTokensOutput, err := meter.Int64Counter(
		"agentd.llm.tokens.output",
		metric.WithDescription("Total output tokens from the LLM"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_tokens_output counter: %w", err)
	}

	llmLatency, err := meter.Float64Histogram(
		"agentd.llm.latency",
		metric.WithDescription("LLM request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_latency histogram: %w", err)
	}

	toolExecutions, err := meter.Int64Counter(
		"agentd.tool.executions.total",
		metric.WithDescription("Total number of tool executions"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool_executions counter: %w", err)
	}

	toolDuration, err := meter.Float64Histogram(
		"agentd.tool.duration",
		metric.WithDescription("Tool execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool_duration histogram: %w", err)
	}

	tasksActive, err := meter.Int64UpDownCounter(
		"agentd.tasks.active",
		metric.WithDescription("Number of agent tasks currently executing"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks_active gauge: %w", err)
	}

	tasksFinished, err := meter.Int64Counter(
		"agentd.tasks.finished.total",
		metric.WithDescription("Total number of finished tasks by terminal status"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks_finished counter: %w", err)
	}

	stepsByStatus, err := meter.Int64Counter(
		"agentd.steps.total",
		metric.WithDescription("Total number of execution steps by status"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create steps counter: %w", err)
	}

	return &MetricsCollector{
		meter:           meter,
		llmRequests:     llmRequests,
		llmTokensInput:  llmTokensInput,
		llmTokensOutput: llmTokensOutput,
		llmLatency:      llmLatency,
		toolExecutions:  toolExecutions,
		toolDuration:    toolDuration,
		tasksActive:     tasksActive,
		tasksFinished:   tasksFinished,
		stepsByStatus:   stepsByStatus,
	}, nil
}

var _ domain.EngineMetrics = (*MetricsCollector)(nil)

// Handler returns the Prometheus scrape handler.
func (m *MetricsCollector) Handler() http.Handler {
	return promclient.Handler()
}

// TaskStarted increments the active task gauge.
func (m *MetricsCollector) TaskStarted(ctx context.Context) {
	if m.tasksActive == nil {
		return
	}
	m.tasksActive.Add(ctx, 1)
}

// TaskFinished decrements the active task gauge and counts the terminal status.
func (m *MetricsCollector) TaskFinished(ctx context.Context, status domain.AgentStatus) {
	if m.tasksActive == nil {
		return
	}
	m.tasksActive.Add(ctx, -1)
	m.tasksFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status.String())))
}

// RecordStep counts one execution step.
func (m *MetricsCollector) RecordStep(ctx context.Context, status domain.AgentStatus) {
	if m.stepsByStatus == nil {
		return
	}
	m.stepsByStatus.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status.String())))
}

// RecordLLMRequest records one model invocation.
func (m *MetricsCollector) RecordLLMRequest(ctx context.Context, model string, duration time.Duration, usage ports.TokenUsage, err error) {
	if m.llmRequests == nil {
		return
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("status", status),
	}

	m.llmRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.llmLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if usage.PromptTokens > 0 {
		m.llmTokensInput.Add(ctx, int64(usage.PromptTokens), metric.WithAttributes(attribute.String("model", model)))
	}
	if usage.CompletionTokens > 0 {
		m.llmTokensOutput.Add(ctx, int64(usage.CompletionTokens), metric.WithAttributes(attribute.String("model", model)))
	}
}

// RecordToolExecution records one tool dispatch.
func (m *MetricsCollector) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, success bool) {
	if m.toolExecutions == nil {
		return
	}

	status := "ok"
	if !success {
		status = "error"
	}
	attrs := []attribute.KeyValue{
		attribute.String("tool_name", tool),
		attribute.String("status", status),
	}

	m.toolExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("tool_name", tool)))
}
