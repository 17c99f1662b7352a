package tools

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mailpilot/mailpilot/internal/instrumentation"
	"github.com/mailpilot/mailpilot/internal/logging"
)

// Invocation states. Validation failures move straight to failed and never
// reach executing.
const (
	StateReceived   = "received"
	StateValidating = "validating"
	StateExecuting  = "executing"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

// Invocation is one named, argument-bearing tool request. RequestID is
// caller-supplied and echoed back verbatim; uniqueness is the caller's
// responsibility.
type Invocation struct {
	SessionID string                 `json:"sessionId,omitempty"`
	RequestID string                 `json:"requestId"`
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Response is the terminal outcome of an invocation. Exactly one of Result
// and Error is set; State is completed or failed.
type Response struct {
	RequestID string       `json:"requestId"`
	Tool      string       `json:"tool"`
	State     string       `json:"state"`
	Result    *Result      `json:"result,omitempty"`
	Error     *ErrorObject `json:"error,omitempty"`
}

// Dispatcher resolves invocations against the registry and runs them through
// the received -> validating -> executing -> completed|failed lifecycle. It
// is stateless across invocations apart from registry contents, so one
// dispatcher serves all sessions concurrently.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	audit    *instrumentation.AuditLogger
}

// NewDispatcher creates a dispatcher over the registry. metrics may be nil.
func NewDispatcher(registry *Registry, logger *slog.Logger, metrics *instrumentation.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, logger: logger, metrics: metrics}
}

// SetAuditLogger installs an audit trail for tool invocations. Without one,
// only operational logs and metrics are emitted.
func (d *Dispatcher) SetAuditLogger(audit *instrumentation.AuditLogger) {
	d.audit = audit
}

// Registry returns the dispatcher's registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch runs one invocation to completion and returns its response. It
// never returns an error: every failure becomes a failed response with a
// structured error object. The context carries the session's cancellation,
// so closing a session aborts in-flight gateway calls made here.
func (d *Dispatcher) Dispatch(ctx context.Context, inv *Invocation) *Response {
	ctx, span := instrumentation.StartToolSpan(ctx, inv.Tool,
		attribute.String(instrumentation.SpanAttrSession, inv.SessionID),
		attribute.String(instrumentation.SpanAttrRequest, inv.RequestID),
	)
	defer span.End()

	audit := instrumentation.NewToolInvocation(inv.Tool).
		WithSession(inv.SessionID, inv.RequestID).
		WithSpanContext(ctx)

	resp := d.dispatch(ctx, inv)

	if resp.Error != nil {
		instrumentation.SetSpanError(span, errors.New(resp.Error.Message))
		audit.CompleteWithError(errors.New(resp.Error.Message))
	} else {
		instrumentation.SetSpanSuccess(span)
		audit.CompleteSuccess()
	}
	if d.audit != nil {
		d.audit.LogToolInvocation(audit)
	}
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, inv *Invocation) *Response {
	logger := d.logger.With(
		logging.Tool(inv.Tool),
		logging.Session(inv.SessionID),
		logging.Request(inv.RequestID),
	)
	logger.Debug("invocation received", logging.Status(StateReceived))

	start := time.Now()
	resp := &Response{RequestID: inv.RequestID, Tool: inv.Tool}

	logger.Debug("validating invocation", logging.Status(StateValidating))
	desc, ok := d.registry.Get(inv.Tool)
	if !ok {
		resp.State = StateFailed
		resp.Error = Classify(NewValidationError("tool", "unknown tool "+inv.Tool))
		logger.Warn("unknown tool", logging.Status(StateFailed))
		d.record(ctx, inv.Tool, logging.StatusError, time.Since(start))
		return resp
	}
	if err := validateArgs(desc.Args, inv.Arguments); err != nil {
		resp.State = StateFailed
		resp.Error = Classify(err)
		logger.Warn("invalid arguments", logging.Status(StateFailed), logging.Err(err))
		d.record(ctx, inv.Tool, logging.StatusError, time.Since(start))
		return resp
	}

	logger.Debug("executing invocation", logging.Status(StateExecuting))
	result, err := desc.Handler(ctx, inv.Arguments)
	duration := time.Since(start)
	if err != nil {
		resp.State = StateFailed
		resp.Error = Classify(err)
		logger.Warn("invocation failed",
			logging.Status(StateFailed),
			slog.String("kind", resp.Error.Kind),
			logging.Err(err),
			slog.Duration(logging.KeyDuration, duration))
		d.record(ctx, inv.Tool, logging.StatusError, duration)
		return resp
	}

	resp.State = StateCompleted
	resp.Result = result
	logger.Debug("invocation completed",
		logging.Status(StateCompleted),
		slog.Duration(logging.KeyDuration, duration))
	d.record(ctx, inv.Tool, logging.StatusSuccess, duration)
	return resp
}

func (d *Dispatcher) record(ctx context.Context, tool, status string, duration time.Duration) {
	if d.metrics != nil {
		d.metrics.RecordToolInvocation(ctx, tool, status, duration)
	}
}
