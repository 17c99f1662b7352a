package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrTool      = "tool"
	attrTrigger   = "trigger"
	attrSession   = "session_id"
)

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Session metrics
	activeSessions        metric.Int64UpDownCounter
	droppedResponsesTotal metric.Int64Counter

	// Gmail gateway metrics
	gatewayOperationsTotal   metric.Int64Counter
	gatewayOperationDuration metric.Float64Histogram
	gatewayRetriesTotal      metric.Int64Counter

	// Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// Summary and notification metrics
	digestsTotal           metric.Int64Counter
	webhookDeliveriesTotal metric.Int64Counter

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.activeSessions, err = meter.Int64UpDownCounter(
		"active_sessions",
		metric.WithDescription("Number of active client sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active_sessions gauge: %w", err)
	}

	m.droppedResponsesTotal, err = meter.Int64Counter(
		"session_responses_dropped_total",
		metric.WithDescription("Total number of outbound responses dropped due to a full session queue"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session_responses_dropped_total counter: %w", err)
	}

	m.gatewayOperationsTotal, err = meter.Int64Counter(
		"gmail_gateway_operations_total",
		metric.WithDescription("Total number of Gmail gateway operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail_gateway_operations_total counter: %w", err)
	}

	m.gatewayOperationDuration, err = meter.Float64Histogram(
		"gmail_gateway_operation_duration_seconds",
		metric.WithDescription("Gmail gateway operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail_gateway_operation_duration_seconds histogram: %w", err)
	}

	m.gatewayRetriesTotal, err = meter.Int64Counter(
		"gmail_gateway_retries_total",
		metric.WithDescription("Total number of retried Gmail gateway calls"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail_gateway_retries_total counter: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	m.digestsTotal, err = meter.Int64Counter(
		"summary_digests_total",
		metric.WithDescription("Total number of summary digests generated"),
		metric.WithUnit("{digest}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create summary_digests_total counter: %w", err)
	}

	m.webhookDeliveriesTotal, err = meter.Int64Counter(
		"webhook_deliveries_total",
		metric.WithDescription("Total number of webhook notification deliveries"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook_deliveries_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordGatewayOperation records a Gmail gateway operation with operation name,
// status ("success" or "error"), and duration.
func (m *Metrics) RecordGatewayOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if m.gatewayOperationsTotal == nil || m.gatewayOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.gatewayOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.gatewayOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordGatewayRetry records a retried Gmail gateway call for the given operation.
func (m *Metrics) RecordGatewayRetry(ctx context.Context, operation string) {
	if m.gatewayRetriesTotal == nil {
		return // Instrumentation not initialized
	}

	m.gatewayRetriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrOperation, operation),
	))
}

// RecordToolInvocation records a tool invocation with tool name, status, and duration.
// Status should be one of: "success", "error".
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// IncrementActiveSessions increments the active sessions counter.
func (m *Metrics) IncrementActiveSessions(ctx context.Context) {
	if m.activeSessions == nil {
		return // Instrumentation not initialized
	}

	m.activeSessions.Add(ctx, 1)
}

// DecrementActiveSessions decrements the active sessions counter.
func (m *Metrics) DecrementActiveSessions(ctx context.Context) {
	if m.activeSessions == nil {
		return // Instrumentation not initialized
	}

	m.activeSessions.Add(ctx, -1)
}

// RecordDroppedResponse records an outbound response dropped from a full session
// queue. The session ID is only attached as a label when detailedLabels is enabled.
func (m *Metrics) RecordDroppedResponse(ctx context.Context, sessionID string) {
	if m.droppedResponsesTotal == nil {
		return // Instrumentation not initialized
	}

	var attrs []attribute.KeyValue
	if m.detailedLabels && sessionID != "" {
		attrs = append(attrs, attribute.String(attrSession, sessionID))
	}

	m.droppedResponsesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDigest records a generated summary digest.
// Trigger should be one of: "cli", "webhook", "schedule", "tool".
func (m *Metrics) RecordDigest(ctx context.Context, trigger string) {
	if m.digestsTotal == nil {
		return // Instrumentation not initialized
	}

	m.digestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrTrigger, trigger),
	))
}

// RecordWebhookDelivery records a webhook notification delivery attempt.
// Status should be one of: "success", "error".
func (m *Metrics) RecordWebhookDelivery(ctx context.Context, status string) {
	if m.webhookDeliveriesTotal == nil {
		return // Instrumentation not initialized
	}

	m.webhookDeliveriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrStatus, status),
	))
}
